// Package server owns the listening socket, the admission gate bounding
// concurrent in-flight requests, and the accept loop that spawns one
// worker per connection.
package server

import (
	"context"
	"net"
	"strconv"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/arnav-deka/proxycache/pkg/metrics"
	"github.com/arnav-deka/proxycache/pkg/worker"
)

// ConnHandler serves one accepted connection. worker.Worker satisfies this.
type ConnHandler interface {
	Serve(conn net.Conn)
}

// Acceptor owns the listening socket and the admission gate. Accepted
// connections are tracked in a circular slot array sized to match the
// gate's capacity, so a reused slot can never alias a still-live worker
// (SPEC_FULL.md §4.5).
type Acceptor struct {
	ln      net.Listener
	gate    *admissionGate
	handler ConnHandler
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	slots []net.Conn
	next  int

	wg sync.WaitGroup
}

// New binds a TCP listener on port with SO_REUSEADDR set, and wires an
// admission gate capped at maxClients. m may be nil to disable metrics
// collection (see pkg/metrics.Metrics' nil-safe Inc/DecInFlight).
func New(port int, maxClients int, h ConnHandler, logger *zap.Logger, m *metrics.Metrics) (*Acceptor, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var controlErr error
			err := c.Control(func(fd uintptr) {
				controlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return controlErr
		},
	}

	ln, err := lc.Listen(context.Background(), "tcp4", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, err
	}

	return &Acceptor{
		ln:      ln,
		gate:    newAdmissionGate(int64(maxClients)),
		handler: h,
		logger:  logger,
		metrics: m,
		slots:   make([]net.Conn, maxClients),
	}, nil
}

// Addr returns the bound listener address, useful for tests that bind to
// port 0.
func (a *Acceptor) Addr() net.Addr {
	return a.ln.Addr()
}

// Run accepts connections until the listener is closed, spawning one
// worker goroutine per connection after acquiring an admission permit.
// Permit acquisition happens in the accept loop itself (not the worker
// goroutine) so a saturated gate applies backpressure directly to accept.
func (a *Acceptor) Run(ctx context.Context) error {
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			a.wg.Wait()
			return err
		}

		if err := a.gate.Acquire(ctx); err != nil {
			conn.Close()
			a.wg.Wait()
			return err
		}
		a.metrics.IncInFlight()

		slot := a.assignSlot(conn)

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer a.gate.Release()
			defer a.metrics.DecInFlight()
			defer a.clearSlot(slot)

			a.handler.Serve(conn)
		}()
	}
}

// Close stops accepting new connections.
func (a *Acceptor) Close() error {
	return a.ln.Close()
}

func (a *Acceptor) assignSlot(conn net.Conn) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	slot := a.next
	a.slots[slot] = conn
	a.next = (a.next + 1) % len(a.slots)
	return slot
}

func (a *Acceptor) clearSlot(slot int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slots[slot] = nil
}

var _ ConnHandler = (*worker.Worker)(nil)
