// Package worker drives a single client connection end to end: read the
// request, consult the cache, forward to the origin when needed, and shape
// errors into the proxy's own HTTP responses.
package worker

import (
	"bytes"
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/arnav-deka/proxycache/pkg/cache"
	"github.com/arnav-deka/proxycache/pkg/constants"
	perrors "github.com/arnav-deka/proxycache/pkg/errors"
	"github.com/arnav-deka/proxycache/pkg/httpmsg"
	"github.com/arnav-deka/proxycache/pkg/metrics"
	"github.com/arnav-deka/proxycache/pkg/upstream"
)

// ForwardedMethods is the subset of httpmsg's accepted method enum this
// worker actually relays. HEAD, OPTIONS, TRACE, and CONNECT parse cleanly
// in the codec but are rejected here with 501 Not Implemented.
var ForwardedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// ExchangeTimeout bounds the context handed to upstream.Exchange, which
// uses it only while dialing the origin; reads and writes on an
// established upstream connection have no deadline.
const ExchangeTimeout = 30 * time.Second

// Worker serves one accepted connection against a shared cache.
type Worker struct {
	cache   *cache.Cache
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a Worker bound to the given cache and logger. m may be nil,
// in which case request counters are simply not collected (see
// pkg/metrics.Metrics' nil-safe Observe* methods).
func New(c *cache.Cache, logger *zap.Logger, m *metrics.Metrics) *Worker {
	return &Worker{cache: c, logger: logger, metrics: m}
}

// Serve runs the full per-connection lifecycle described in SPEC_FULL.md
// §4.4 against conn, then closes it. Panics from deeper in the call chain
// are recovered here so a single bad connection can never take down the
// acceptor.
func (w *Worker) Serve(conn net.Conn) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker panic recovered", zap.Any("panic", r))
		}
	}()

	raw, err := readRequest(conn)
	if err != nil {
		// Zero bytes and no terminator before EOF: nothing useful to
		// answer with, so the connection is simply dropped.
		w.metrics.ObserveRequest(metrics.OutcomeDropped)
		return
	}

	fp := append([]byte(nil), raw...)

	req, err := httpmsg.Parse(raw)
	if err != nil {
		w.logger.Debug("rejecting malformed request", zap.Error(err))
		conn.Write(httpmsg.ErrorResponse(400))
		w.metrics.ObserveRequest(metrics.OutcomeBadRequest)
		return
	}

	if !ForwardedMethods[req.Method] {
		w.logger.Debug("rejecting unsupported method", zap.String("method", req.Method))
		conn.Write(httpmsg.ErrorResponse(501))
		w.metrics.ObserveRequest(metrics.OutcomeNotImplemented)
		return
	}

	if !req.Valid() {
		w.logger.Debug("rejecting invalid request shape",
			zap.String("host", req.Host), zap.String("path", req.Path), zap.String("version", req.Version))
		conn.Write(httpmsg.ErrorResponse(400))
		w.metrics.ObserveRequest(metrics.OutcomeBadRequest)
		return
	}

	isGet := req.Method == "GET"

	if isGet {
		if entry, ok := w.cache.Lookup(fp, req.Method); ok {
			conn.Write(entry.Payload)
			w.metrics.ObserveRequest(metrics.OutcomeCacheHit)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ExchangeTimeout)
	defer cancel()

	result, err := upstream.Exchange(ctx, req, conn, isGet)
	if err != nil {
		errType := perrors.GetErrorType(err)
		w.metrics.ObserveUpstreamError(string(errType))

		switch errType {
		case perrors.ErrorTypeUpstreamUnreachable, perrors.ErrorTypeAllocationFailure:
			conn.Write(httpmsg.ErrorResponse(500))
			w.metrics.ObserveRequest(metrics.OutcomeUpstreamError)
		case perrors.ErrorTypeUpstreamIO:
			// A status line may already have been committed to the
			// client, in which case the relay simply aborts (§7). But
			// if Exchange failed before relaying anything — e.g. the
			// write to a just-dialed origin failed outright — the
			// worker still owns the response and must answer 500.
			if result == nil || result.BytesRelayed == 0 {
				conn.Write(httpmsg.ErrorResponse(500))
			}
			w.metrics.ObserveRequest(metrics.OutcomeUpstreamError)
		case perrors.ErrorTypeClientIO:
			// Client went away mid-relay; nothing to report.
			w.metrics.ObserveRequest(metrics.OutcomeClientError)
		}
		w.logger.Info("upstream exchange failed",
			zap.String("host", req.Host), zap.String("method", req.Method), zap.Error(err))
		return
	}

	w.logger.Debug("exchange complete",
		zap.String("host", req.Host), zap.String("method", req.Method),
		zap.Int64("bytes_relayed", result.BytesRelayed), zap.String("timing", result.Metrics.String()))
	w.metrics.ObserveRequest(metrics.OutcomeForwarded)

	if isGet && result.Capture != nil {
		defer result.Capture.Close()
		if payload := result.Capture.Bytes(); len(payload) > 0 {
			if !w.cache.Insert(payload, fp, req.Method) {
				w.logger.Debug("cache declined entry", zap.String("host", req.Host))
			}
		}
	}
}

// readRequest reads from conn until the header terminator appears, conn
// yields EOF or an error, or the read window is exhausted — whichever
// comes first (§4.4 step 2). At most constants.ClientReadWindow bytes are
// read. Request.ContentLength is not used to read further: this single
// window is the only body capture, so a body that extends past it is
// forwarded truncated.
func readRequest(conn net.Conn) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, constants.MaxBytes)

	for buf.Len() < constants.ClientReadWindow {
		n, err := conn.Read(chunk[:min(len(chunk), constants.ClientReadWindow-buf.Len())])
		if n > 0 {
			buf.Write(chunk[:n])
			if bytes.Contains(buf.Bytes(), []byte("\r\n\r\n")) {
				return buf.Bytes(), nil
			}
		}
		if err != nil {
			if buf.Len() > 0 {
				return buf.Bytes(), nil
			}
			return nil, err
		}
	}

	return buf.Bytes(), nil
}
