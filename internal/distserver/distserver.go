// Package distserver implements the server side of the distributed
// evaluation offload: a TCP listener with admission control bounding live
// workers to max_threads, a per-connection handshake, and a request/response
// loop delegating to a local evaluator.
package distserver

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/lp200/leela-zero/internal/netproto"
)

// Evaluator is the forward-pass implementation the server delegates to;
// satisfied by *localeval.Weights.
type Evaluator interface {
	Evaluate(fingerprint uint64, boardSize int) (policy []float32, policyPass, winrate float32)
}

// Server accepts connections and serves evaluation requests.
type Server struct {
	modelHash     uint64
	boardSize     int
	inputChannels int
	maxThreads    int64
	eval          Evaluator
	verbose       bool

	liveWorkers atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Server. modelHash is echoed back verbatim during the
// handshake without verification against the client's own hash — the
// server doesn't reject a mismatched client, a documented design quirk
// carried over deliberately rather than silently "fixed". inputChannels is
// combined with boardSize to size the fixed-width feature request the wire
// protocol expects per connection.
func New(modelHash uint64, boardSize, inputChannels, maxThreads int, eval Evaluator, verbose bool) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		modelHash:     modelHash,
		boardSize:     boardSize,
		inputChannels: inputChannels,
		maxThreads:    int64(maxThreads),
		eval:          eval,
		verbose:       verbose,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Listen runs the accept loop on addr until Stop is called or the listener
// errors. It blocks the calling goroutine; callers typically run it in its
// own goroutine.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("distserver: listen %s: %w", addr, err)
	}
	defer ln.Close()

	go func() {
		<-s.ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return fmt.Errorf("distserver: accept: %w", err)
			}
		}

		if s.liveWorkers.Load() >= s.maxThreads {
			if s.verbose {
				log.Printf("distserver: rejecting connection from %s: at max_threads", conn.RemoteAddr())
			}
			conn.Close()
			continue
		}

		s.wg.Add(1)
		s.liveWorkers.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer s.liveWorkers.Add(-1)
	defer conn.Close()

	clientHash, err := netproto.ReadHandshake(conn)
	if err != nil {
		if s.verbose {
			log.Printf("distserver: handshake read from %s: %v", conn.RemoteAddr(), err)
		}
		return
	}
	_ = clientHash // intentionally not verified against s.modelHash
	if err := netproto.WriteHandshake(conn, s.modelHash); err != nil {
		return
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		req, err := netproto.ReadRequest(conn, s.inputChannels*s.boardSize)
		if err != nil {
			return
		}

		fingerprint := fingerprintOf(req.Features)
		policy, policyPass, winrate := s.eval.Evaluate(fingerprint, s.boardSize)
		resp := netproto.Response{Policy: policy, PolicyPass: policyPass, Winrate: winrate}
		if err := netproto.WriteResponse(conn, resp); err != nil {
			return
		}
	}
}

// fingerprintOf derives a stable fingerprint from a feature block, standing
// in for the board-position hash an external tree-search collaborator
// would otherwise supply; the local evaluator only needs determinism, not
// cryptographic strength. This is an FNV-1a-style byte loop with the 64-bit
// FNV prime and the same offset constant as cmd/nnclient's fingerprintOf
// (not the standard FNV-1a offset basis), applied to the raw 0/1 indicator
// bytes on the wire.
func fingerprintOf(features []byte) uint64 {
	var h uint64 = 1469598103934665603
	for _, b := range features {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return h
}

// Stop signals the accept loop and every worker to exit and waits for them
// to finish.
func (s *Server) Stop() {
	s.cancel()
	s.wg.Wait()
}

// LiveWorkers returns the current number of connections being served.
func (s *Server) LiveWorkers() int64 {
	return s.liveWorkers.Load()
}
