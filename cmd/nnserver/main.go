package main

import (
	"flag"
	"log"
	"strconv"

	"github.com/lp200/leela-zero/internal/distserver"
	"github.com/lp200/leela-zero/internal/localeval"
)

func main() {
	port := flag.Int("port", 8233, "TCP port to listen on")
	modelHash := flag.String("model-hash", "0", "model hash this server reports during the handshake")
	threads := flag.Int("threads", 4, "max simultaneous worker connections")
	weights := flag.String("weights", "", "local weights file; empty uses an in-memory stub")
	boardSize := flag.Int("intersections", 361, "number of board intersections (N)")
	channels := flag.Int("channels", 18, "input feature planes per position (INPUT_CHANNELS)")
	verbose := flag.Bool("verbose", false, "enable verbose logging")
	flag.Parse()

	var w *localeval.Weights
	if *weights != "" {
		loaded, err := localeval.Load(*weights)
		if err != nil {
			log.Fatalf("nnserver: load weights: %v", err)
		}
		w = loaded
	} else {
		w = localeval.Stub(*boardSize)
		log.Printf("nnserver: no -weights given, using an in-memory stub evaluator")
	}

	hash, err := parseHash(*modelHash)
	if err != nil {
		log.Fatalf("nnserver: bad -model-hash: %v", err)
	}

	srv := distserver.New(hash, *boardSize, *channels, *threads, w, *verbose)
	addr := ":" + strconv.Itoa(*port)
	log.Printf("nnserver: listening on %s, max_threads=%d, model_hash=%x", addr, *threads, hash)
	if err := srv.Listen(addr); err != nil {
		log.Fatalf("nnserver: %v", err)
	}
}

func parseHash(s string) (uint64, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
