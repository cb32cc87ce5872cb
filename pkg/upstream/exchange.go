// Package upstream performs the one-shot dial-write-read exchange with an
// origin server and relays the response back to the client as it arrives.
package upstream

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/arnav-deka/proxycache/pkg/buffer"
	"github.com/arnav-deka/proxycache/pkg/constants"
	"github.com/arnav-deka/proxycache/pkg/errors"
	"github.com/arnav-deka/proxycache/pkg/httpmsg"
	"github.com/arnav-deka/proxycache/pkg/timing"
)

// DialTimeout bounds DNS resolution plus TCP connect to the origin. The
// teacher's transport layer splits these into separate phases because it
// supports proxy chains and TLS; a single DialContext call folds both into
// one phase here (see pkg/timing), since this proxy never pools or reuses
// upstream connections (§1 Non-goals).
const DialTimeout = 10 * time.Second

// Result carries what the worker needs after a relay completes: whether a
// capture was taken for the cache, how many bytes went to the client, and
// timing for structured logging. Exchange also returns a non-nil Result
// alongside an ErrUpstreamIO error — BytesRelayed there tells the worker
// whether a status line has already been committed to the client (§7): 0
// means the worker may still answer with its own 500.
type Result struct {
	Capture      *buffer.Buffer
	BytesRelayed int64
	Metrics      timing.Metrics
}

// Exchange serializes req, dials the origin named by req.Host/req.Port,
// writes the request, and copies the response to client as it arrives one
// MAX_BYTES-1 chunk at a time. When capture is true the same bytes are also
// accumulated into an in-memory buffer.Buffer the worker can offer to the
// cache afterward. The capture is capped at constants.MaxElementBytes (the
// cache's default per-entry ceiling) and is discarded once it grows past
// that cap.
//
// Exchange forces Connection: close and, when the request carries no Host
// header, adds one naming the authority it dials. An existing Host header
// is forwarded unchanged; no other header is rewritten.
func Exchange(ctx context.Context, req *httpmsg.Request, client io.Writer, capture bool) (*Result, error) {
	req.SetHeader("Connection", "close")
	if _, ok := req.GetHeader("Host"); !ok {
		req.SetHeader("Host", hostHeaderValue(req))
	}

	wire := httpmsg.Serialize(req)

	headerLen := len(wire) - len(req.Body)
	if headerLen > constants.MaxBytes {
		return nil, errors.NewRequestTooLarge(req.Host, headerLen, constants.MaxBytes)
	}

	timer := timing.NewTimer()

	addr := net.JoinHostPort(req.Host, req.Port)
	dialer := &net.Dialer{Timeout: DialTimeout}

	timer.StartDial()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	timer.EndDial()
	if err != nil {
		return nil, errors.NewUpstreamUnreachable(req.Host, err)
	}
	defer conn.Close()

	if _, err := conn.Write(wire); err != nil {
		// Nothing has reached the client yet, so the worker still owns
		// the status line — BytesRelayed stays 0 so it knows to answer
		// 500 rather than abort silently (§7).
		return &Result{BytesRelayed: 0, Metrics: timer.Metrics()}, errors.NewUpstreamIO("write", req.Host, err)
	}

	var cap *buffer.Buffer
	if capture {
		cap = buffer.New(constants.MaxElementBytes)
	}

	var relayed int64
	chunk := make([]byte, constants.MaxBytes-1)

	timer.StartTTFB()
	gotFirstByte := false

	for {
		n, readErr := conn.Read(chunk)
		if n > 0 {
			if !gotFirstByte {
				timer.EndTTFB()
				gotFirstByte = true
			}

			if _, werr := client.Write(chunk[:n]); werr != nil {
				// The client went away mid-relay. This is not an upstream
				// fault, so it is reported distinctly (§7 ErrClientIO) and
				// never triggers a 5xx write attempt.
				if cap != nil {
					cap.Close()
				}
				return nil, errors.NewClientIO(werr)
			}

			relayed += int64(n)
			if cap != nil {
				cap.Write(chunk[:n])
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			if cap != nil {
				cap.Close()
			}
			// Bytes may already have reached the client (relayed > 0);
			// the worker uses BytesRelayed to decide whether a status
			// line has already been committed (§7).
			return &Result{BytesRelayed: relayed, Metrics: timer.Metrics()}, errors.NewUpstreamIO("read", req.Host, readErr)
		}
	}

	return &Result{Capture: cap, BytesRelayed: relayed, Metrics: timer.Metrics()}, nil
}

// hostHeaderValue renders the Host header value the origin should see:
// bare hostname when the port is the implicit default, host:port
// otherwise.
func hostHeaderValue(req *httpmsg.Request) string {
	if req.Port == "" || req.Port == httpmsg.DefaultPort {
		return req.Host
	}
	return req.Host + ":" + req.Port
}
