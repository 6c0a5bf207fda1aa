package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"

	"github.com/lp200/leela-zero/internal/config"
	"github.com/lp200/leela-zero/internal/evaluator"
	"github.com/lp200/leela-zero/internal/localeval"
)

func main() {
	threads := flag.Int("threads", 1, "desired number of distributed worker connections")
	verbose := flag.Bool("verbose", false, "enable verbose logging")
	intersections := flag.Int("intersections", 361, "number of board intersections (N)")
	channels := flag.Int("channels", 18, "number of input feature planes")
	modelHash := flag.String("model-hash", "0", "model hash as a decimal or 0x-prefixed hex u64")
	servers := flag.String("servers", "", "comma-separated host:port list of remote evaluation servers")
	cachePath := flag.String("cache", "", "on-disk NN cache file path (empty disables the file tier)")
	cacheSize := flag.Int("cache-size", 150_000, "total cache entry budget (split between memory and the file index when -cache is set)")
	selfcheck := flag.Bool("selfcheck", false, "on a cache hit, re-evaluate through the distributed client and log any mismatch with the cached result (the local evaluator is not forced)")
	bench := flag.Int("bench", 0, "run N synthetic evaluations against the facade and exit, instead of reading stdin")
	weights := flag.String("weights", "", "local fallback weights file; empty uses an in-memory stub")
	flag.Parse()

	hash, err := config.ParseModelHash(*modelHash)
	if err != nil {
		log.Fatalf("nnclient: bad -model-hash: %v", err)
	}
	serverList, err := config.ParseServerList(*servers)
	if err != nil {
		log.Fatalf("nnclient: %v", err)
	}

	cfg := &config.Config{
		DesiredThreads:   *threads,
		Verbose:          *verbose,
		NumIntersections: *intersections,
		InputChannels:    *channels,
		ModelHash:        hash,
		Servers:          serverList,
		CachePath:        *cachePath,
		CacheSizeHint:    *cacheSize,
		SelfCheck:        *selfcheck,
	}

	var local *localeval.Weights
	if *weights != "" {
		local, err = localeval.Load(*weights)
		if err != nil {
			log.Fatalf("nnclient: load weights: %v", err)
		}
	} else {
		local = localeval.Stub(cfg.NumIntersections)
	}

	ev, err := evaluator.New(cfg, local)
	if err != nil {
		log.Fatalf("nnclient: %v", err)
	}
	defer ev.Close()

	if *bench > 0 {
		runBench(ev, cfg, *bench)
		return
	}
	runStdinHarness(ev, cfg)
}

func runBench(ev evaluator.Evaluator, cfg *config.Config, n int) {
	rng := rand.New(rand.NewSource(1))
	completed := 0
	for i := 0; i < n; i++ {
		fingerprint := rng.Uint64()
		features := make([]byte, cfg.InputChannels*cfg.NumIntersections)
		if _, err := ev.Evaluate(context.Background(), fingerprint, features); err != nil {
			log.Printf("nnclient: evaluate %d: %v", i, err)
			continue
		}
		completed++
	}
	stats := ev.Stats()
	fmt.Printf("completed %d/%d evaluations, cache lookups=%d hits=%d\n", completed, n, stats.Lookups, stats.Hits)
}

// runStdinHarness reads newline-delimited hex-encoded feature blocks from
// stdin and prints the decoded NetResult for each, standing in for the GTP
// front-end this repo treats as an external collaborator.
func runStdinHarness(ev evaluator.Evaluator, cfg *config.Config) {
	_ = cfg
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		raw, err := hex.DecodeString(line)
		if err != nil {
			log.Printf("nnclient: bad hex input: %v", err)
			continue
		}
		fingerprint := fingerprintOf(raw)
		result, err := ev.Evaluate(context.Background(), fingerprint, raw)
		if err != nil {
			log.Printf("nnclient: evaluate: %v", err)
			continue
		}
		fmt.Printf("policy_pass=%v winrate=%v policy[0:3]=%v\n", result.PolicyPass, result.Winrate, firstN(result.Policy, 3))
	}
}

func firstN(s []float32, n int) []float32 {
	if len(s) < n {
		n = len(s)
	}
	return s[:n]
}

func fingerprintOf(features []byte) uint64 {
	var h uint64 = 1469598103934665603
	for _, b := range features {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return h
}
