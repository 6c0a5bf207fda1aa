// Package distclient implements the client side of the distributed
// evaluation offload: a pool of persistent TCP connections to remote
// nnserver processes, a model-hash handshake, a bounded-retry startup
// sequence, a background reconnector, and a local-evaluator fallback when
// the pool is exhausted or a remote call times out.
package distclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lp200/leela-zero/internal/netproto"
	"github.com/lp200/leela-zero/internal/nnerrors"
)

// EvalDeadline bounds every round trip to a remote server; a slower
// response is treated as a timeout and falls back to local evaluation.
const EvalDeadline = 500 * time.Millisecond

// ExhaustedRetryDelay is how long Evaluate sleeps before retrying when the
// pool is empty and no local fallback is configured, rather than failing
// the call outright.
const ExhaustedRetryDelay = 1 * time.Second

// startupRetryAttempts mirrors the original client's retry_attempt=5 loop:
// initialize gives a cold-starting server cluster a few chances before
// giving up, rather than running with an empty pool after one failed dial.
const startupRetryAttempts = 5

// LocalEvaluator is the fallback path used when no remote connection is
// available; satisfied by *localeval.Weights.
type LocalEvaluator interface {
	Evaluate(fingerprint uint64, boardSize int) (policy []float32, policyPass, winrate float32)
}

// Client manages the remote connection pool and the local fallback.
type Client struct {
	servers   []string
	modelHash uint64
	boardSize int
	local     LocalEvaluator

	mu   sync.Mutex
	idle []net.Conn

	activeCount atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	verbose bool
}

// New creates a client for the given server roster. If local is non-nil it
// is used whenever the pool can't satisfy a request; if local is nil and
// the pool is exhausted, Evaluate keeps retrying and returns
// nnerrors.ErrExhausted only once its context is cancelled.
func New(servers []string, modelHash uint64, boardSize int, local LocalEvaluator, verbose bool) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		servers:   servers,
		modelHash: modelHash,
		boardSize: boardSize,
		local:     local,
		ctx:       ctx,
		cancel:    cancel,
		verbose:   verbose,
	}
}

// Initialize dials every configured server, retrying the whole round up to
// startupRetryAttempts times while the pool holds fewer than desiredThreads
// connections, then starts the background reconnector. If after retrying
// the pool is still empty AND no local evaluator is configured,
// Initialize fails with nnerrors.ErrExhausted: running forever with zero
// working connections and no fallback is worse than failing loudly at
// startup.
func (c *Client) Initialize(desiredThreads int) error {
	if len(c.servers) == 0 {
		if c.local == nil {
			return fmt.Errorf("distclient: %w: no servers configured and no local fallback", nnerrors.ErrExhausted)
		}
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < startupRetryAttempts; attempt++ {
		lastErr = c.dialAll()
		if c.PoolSize() >= desiredThreads {
			break
		}
		if attempt < startupRetryAttempts-1 {
			time.Sleep(200 * time.Millisecond)
		}
	}

	if c.PoolSize() == 0 && c.local == nil {
		return fmt.Errorf("distclient: %w: connected to 0 of %d servers after %d attempts: %v",
			nnerrors.ErrExhausted, len(c.servers), startupRetryAttempts, lastErr)
	}

	c.wg.Add(1)
	go c.reconnectLoop()
	return nil
}

func (c *Client) dialAll() error {
	var lastErr error
	for _, addr := range c.servers {
		if conn, err := c.connect(addr); err == nil {
			c.mu.Lock()
			c.idle = append(c.idle, conn)
			c.mu.Unlock()
		} else {
			lastErr = err
			if c.verbose {
				log.Printf("distclient: dial %s: %v", addr, err)
			}
		}
	}
	return lastErr
}

// connect dials addr and performs the model-hash handshake outside of any
// pool lock, so a slow or hung dial never blocks Evaluate callers holding
// the idle-queue mutex.
func (c *Client) connect(addr string) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, EvalDeadline)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", nnerrors.ErrConnect, addr, err)
	}
	conn.SetDeadline(time.Now().Add(EvalDeadline))
	if err := netproto.WriteHandshake(conn, c.modelHash); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: send handshake to %s: %v", nnerrors.ErrHandshake, addr, err)
	}
	echoed, err := netproto.ReadHandshake(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: read handshake from %s: %v", nnerrors.ErrHandshake, addr, err)
	}
	if echoed != c.modelHash {
		conn.Close()
		return nil, fmt.Errorf("%w: %s echoed model hash %x, want %x", nnerrors.ErrHandshake, addr, echoed, c.modelHash)
	}
	conn.SetDeadline(time.Time{})
	return conn, nil
}

// reconnectLoop periodically tops the pool back up to len(servers)
// connections, dialing outside the idle-queue lock (spec's redesign of the
// "reconnector historically blocking evaluate" bug) and only taking the
// lock to push a freshly-dialed connection in.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.PoolSize() >= len(c.servers) {
				continue
			}
			c.dialAll()
		}
	}
}

// PoolSize returns the number of currently idle pooled connections.
func (c *Client) PoolSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.idle)
}

// ActiveCount returns the number of connections currently checked out for
// an in-flight evaluation.
func (c *Client) ActiveCount() int64 {
	return c.activeCount.Load()
}

func (c *Client) popConn() (net.Conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.idle)
	if n == 0 {
		return nil, false
	}
	conn := c.idle[0]
	c.idle = c.idle[1:]
	return conn, true
}

func (c *Client) pushConn(conn net.Conn) {
	c.mu.Lock()
	c.idle = append(c.idle, conn)
	c.mu.Unlock()
}

// Evaluate sends features to a pooled remote connection and returns the
// decoded response. When the pool is empty or a round trip fails, it falls
// back to the local evaluator if one is configured; with no local fallback
// it sleeps ExhaustedRetryDelay and retries from the top rather than
// failing the call, until ctx is cancelled. A remote connection that errors
// is dropped rather than returned to the pool; the reconnector will replace
// it.
func (c *Client) Evaluate(ctx context.Context, fingerprint uint64, features []byte) (netproto.Response, error) {
	for {
		conn, ok := c.popConn()
		if !ok {
			if c.local != nil {
				return c.evaluateLocal(fingerprint)
			}
			if err := c.sleepOrCancel(ctx); err != nil {
				return netproto.Response{}, fmt.Errorf("distclient: %w: pool exhausted and no local fallback: %v", nnerrors.ErrExhausted, err)
			}
			continue
		}

		c.activeCount.Add(1)
		conn.SetDeadline(time.Now().Add(EvalDeadline))
		resp, err := c.roundTrip(conn, features)
		c.activeCount.Add(-1)
		if err != nil {
			conn.Close()
			if c.verbose {
				log.Printf("distclient: remote evaluate failed: %v", err)
			}
			if c.local != nil {
				return c.evaluateLocal(fingerprint)
			}
			if err := c.sleepOrCancel(ctx); err != nil {
				return netproto.Response{}, fmt.Errorf("distclient: %w: pool exhausted and no local fallback: %v", nnerrors.ErrExhausted, err)
			}
			continue
		}
		conn.SetDeadline(time.Time{})
		c.pushConn(conn)
		return resp, nil
	}
}

// sleepOrCancel waits out ExhaustedRetryDelay, returning early with ctx's
// error if it's cancelled first.
func (c *Client) sleepOrCancel(ctx context.Context) error {
	timer := time.NewTimer(ExhaustedRetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) roundTrip(conn net.Conn, features []byte) (netproto.Response, error) {
	if err := netproto.WriteRequest(conn, netproto.Request{Features: features}); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return netproto.Response{}, fmt.Errorf("%w: %v", nnerrors.ErrTimeout, err)
		}
		return netproto.Response{}, fmt.Errorf("%w: %v", nnerrors.ErrIO, err)
	}
	resp, err := netproto.ReadResponse(conn, c.boardSize)
	if err != nil {
		if isTimeout(err) {
			return netproto.Response{}, fmt.Errorf("%w: %v", nnerrors.ErrTimeout, err)
		}
		return netproto.Response{}, fmt.Errorf("%w: %v", nnerrors.ErrIO, err)
	}
	return resp, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Client) evaluateLocal(fingerprint uint64) (netproto.Response, error) {
	if c.local == nil {
		return netproto.Response{}, fmt.Errorf("distclient: %w: no remote connection and no local fallback", nnerrors.ErrExhausted)
	}
	policy, policyPass, winrate := c.local.Evaluate(fingerprint, c.boardSize)
	return netproto.Response{Policy: policy, PolicyPass: policyPass, Winrate: winrate}, nil
}

// Stop cancels the background reconnector and closes every pooled
// connection, joining the reconnector goroutine before returning.
func (c *Client) Stop() {
	c.cancel()
	c.wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.idle {
		conn.Close()
	}
	c.idle = nil
}
