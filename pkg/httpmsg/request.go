// Package httpmsg parses an HTTP/1.x request out of a byte buffer and
// serializes a structured request back onto the wire. It performs no I/O
// of its own.
package httpmsg

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/arnav-deka/proxycache/pkg/errors"
)

// DefaultPort is used when a request target carries neither an explicit
// URI authority port nor a Host header port.
const DefaultPort = "80"

var crlfcrlf = []byte("\r\n\r\n")
var crlf = []byte("\r\n")

// supportedMethods is the full method enum the codec accepts at parse
// time. A subset of these (see worker.ForwardedMethods) is what the
// worker actually forwards; HEAD/OPTIONS/TRACE/CONNECT parse cleanly here
// but are rejected downstream with 501.
var supportedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
	"HEAD": true, "OPTIONS": true, "TRACE": true, "CONNECT": true,
}

var supportedVersions = map[string]bool{
	"HTTP/1.0": true, "HTTP/1.1": true,
}

// header is one (name, value) pair. Name is preserved as written on the
// wire; comparisons against it are always case-insensitive.
type header struct {
	name  string
	value string
}

// Request is a parsed HTTP/1.x request.
type Request struct {
	Method        string
	Version       string
	Host          string
	Port          string
	Path          string
	Headers       []header
	Body          []byte
	ContentLength int
}

// Parse consumes a byte buffer expected to contain at least the header
// section terminated by CRLFCRLF. Bytes after the terminator become the
// initial body segment verbatim; the codec never reads past what it was
// given (see DESIGN.md — that is the worker's concern).
func Parse(buf []byte) (*Request, error) {
	idx := bytes.Index(buf, crlfcrlf)
	if idx < 0 {
		return nil, errors.NewMalformedRequest("missing header terminator", nil)
	}

	headSection := buf[:idx]
	body := buf[idx+len(crlfcrlf):]

	lineEnd := bytes.Index(headSection, crlf)
	var requestLine []byte
	var headerBlock []byte
	if lineEnd < 0 {
		requestLine = headSection
		headerBlock = nil
	} else {
		requestLine = headSection[:lineEnd]
		headerBlock = headSection[lineEnd+len(crlf):]
	}

	fields := strings.Split(string(requestLine), " ")
	if len(fields) != 3 {
		return nil, errors.NewMalformedRequest("request line must have exactly 3 fields", nil)
	}
	method, target, version := fields[0], fields[1], fields[2]

	if !supportedMethods[method] {
		return nil, errors.NewMalformedRequest("unsupported method "+method, nil)
	}
	if !supportedVersions[version] {
		return nil, errors.NewMalformedRequest("unsupported version "+version, nil)
	}

	req := &Request{
		Method:  method,
		Version: version,
		Body:    append([]byte(nil), body...),
	}

	parseTarget(req, target)
	parseHeaders(req, headerBlock)

	return req, nil
}

// parseTarget splits a request-target into host/port/path following the
// absolute-form vs origin-form rule in DATA MODEL §3.
func parseTarget(req *Request, target string) {
	const absolutePrefix = "http://"

	if strings.HasPrefix(target, absolutePrefix) {
		rest := target[len(absolutePrefix):]
		slash := strings.IndexByte(rest, '/')

		var authority string
		if slash < 0 {
			authority = rest
			req.Path = "/"
		} else {
			authority = rest[:slash]
			req.Path = rest[slash:]
		}

		if colon := strings.IndexByte(authority, ':'); colon >= 0 {
			req.Host = authority[:colon]
			req.Port = authority[colon+1:]
		} else {
			req.Host = authority
			req.Port = DefaultPort
		}
		return
	}

	req.Path = target
}

// parseHeaders splits the header block on CRLF and applies the
// Host/Content-Length mutation rules.
func parseHeaders(req *Request, block []byte) {
	if len(block) == 0 {
		return
	}

	lines := bytes.Split(block, crlf)
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		name := strings.TrimSpace(string(line[:colon]))
		value := strings.TrimSpace(string(line[colon+1:]))
		req.Headers = append(req.Headers, header{name: name, value: value})

		switch {
		case strings.EqualFold(name, "Host") && req.Host == "":
			host, port := value, ""
			if idx := strings.IndexByte(value, ':'); idx >= 0 {
				host, port = value[:idx], value[idx+1:]
			}
			req.Host = host
			if port != "" {
				req.Port = port
			} else if req.Port == "" {
				req.Port = DefaultPort
			}
		case strings.EqualFold(name, "Content-Length"):
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				req.ContentLength = n
			}
		}
	}
}

// Valid reports whether the parsed request satisfies the post-parse
// invariant in DATA MODEL §3: method and version already validated at
// parse time, host non-empty, path non-empty and beginning with "/".
func (r *Request) Valid() bool {
	return r.Host != "" && r.Path != "" && strings.HasPrefix(r.Path, "/") && supportedVersions[r.Version]
}

// GetHeader returns the first value for name (case-insensitive) and
// whether it was present.
func (r *Request) GetHeader(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.name, name) {
			return h.value, true
		}
	}
	return "", false
}

// SetHeader overwrites the first header matching name (case-insensitive)
// or appends a new one.
func (r *Request) SetHeader(name, value string) {
	for i := range r.Headers {
		if strings.EqualFold(r.Headers[i].name, name) {
			r.Headers[i].value = value
			return
		}
	}
	r.Headers = append(r.Headers, header{name: name, value: value})
}

// RemoveHeader removes the first header matching name (case-insensitive),
// if present.
func (r *Request) RemoveHeader(name string) {
	for i := range r.Headers {
		if strings.EqualFold(r.Headers[i].name, name) {
			r.Headers = append(r.Headers[:i], r.Headers[i+1:]...)
			return
		}
	}
}

// Serialize renders the request back onto the wire: request line, headers
// in insertion order, a blank line, then the body if non-empty.
func Serialize(r *Request) []byte {
	var buf bytes.Buffer

	buf.WriteString(r.Method)
	buf.WriteByte(' ')
	buf.WriteString(r.Path)
	buf.WriteByte(' ')
	buf.WriteString(r.Version)
	buf.Write(crlf)

	for _, h := range r.Headers {
		buf.WriteString(h.name)
		buf.WriteString(": ")
		buf.WriteString(h.value)
		buf.Write(crlf)
	}
	buf.Write(crlf)

	if len(r.Body) > 0 {
		buf.Write(r.Body)
	}

	return buf.Bytes()
}
