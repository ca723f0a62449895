// Package http1 implements the L2a HTTP/1.1 request parser and response
// writer: request-line and header-block parsing, Content-Length and
// chunked body framing, and the symmetric response writer.
package http1

import (
	"bufio"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/WhileEndless/go-rawserver/pkg/bufpool"
	"github.com/WhileEndless/go-rawserver/pkg/dispatch"
	"github.com/WhileEndless/go-rawserver/pkg/errors"
)

// MaxRequestLineLen bounds the request line per spec §4.3.1.
const MaxRequestLineLen = 8 * 1024

// Config bounds the parser's resource usage; callers translate
// ServerOptions into this at connection setup.
type Config struct {
	MaxRequestBodySize int64
}

// BodyFraming is the body-length strategy determined while parsing a
// request's headers, carried forward to ReadRequestBody. It is opaque to
// callers outside this package.
type BodyFraming struct {
	chunked          bool
	sawContentLength bool
	contentLength    int64
}

// ReadRequestHead parses the request line and header block off r, and
// stops there — it never touches the body. Splitting this out from body
// reading lets a caller apply header_timeout to just this call and
// request_timeout (or a remaining fraction of it) to the subsequent
// ReadRequestBody, per spec §4.6.
//
// On a protocol violation it returns a *errors.Error with Kind
// KindBadRequest; the caller maps that to a 400 response, per §4.3.4.
func ReadRequestHead(r *bufio.Reader) (*dispatch.Request, BodyFraming, error) {
	line, err := readLine(r, MaxRequestLineLen)
	if err != nil {
		return nil, BodyFraming{}, err
	}

	method, target, proto, err := parseRequestLine(line)
	if err != nil {
		return nil, BodyFraming{}, err
	}

	req := &dispatch.Request{
		Method: method,
		Path:   target,
		Proto:  proto,
	}

	framing := BodyFraming{contentLength: -1}

	for {
		line, err := readLine(r, MaxRequestLineLen)
		if err != nil {
			return nil, BodyFraming{}, err
		}
		if line == "" {
			break
		}

		name, value, err := parseHeaderLine(line)
		if err != nil {
			return nil, BodyFraming{}, err
		}
		req.Header.Add(name, value)

		switch strings.ToLower(name) {
		case "content-length":
			n, convErr := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if convErr != nil || n < 0 {
				return nil, BodyFraming{}, errors.NewBadRequestError("parse_headers", "invalid Content-Length", convErr)
			}
			if framing.sawContentLength && n != framing.contentLength {
				return nil, BodyFraming{}, errors.NewBadRequestError("parse_headers", "conflicting Content-Length values", nil)
			}
			framing.contentLength = n
			framing.sawContentLength = true
		case "transfer-encoding":
			if strings.EqualFold(strings.TrimSpace(value), "chunked") {
				framing.chunked = true
			}
		}
	}

	if framing.chunked && framing.sawContentLength {
		return nil, BodyFraming{}, errors.NewBadRequestError("parse_headers", "Content-Length and chunked Transfer-Encoding are mutually exclusive", nil)
	}

	host := req.Header.Get("Host")
	if proto == "HTTP/1.1" && host == "" {
		return nil, BodyFraming{}, errors.NewBadRequestError("parse_headers", "missing required Host header", nil)
	}

	req.KeepAlive = computeKeepAlive(proto, req.Header.Get("Connection"))
	req.ContentLength = framing.contentLength

	return req, framing, nil
}

// ReadRequestBody reads req's body off r per framing, determined by an
// earlier ReadRequestHead call, and attaches it (and any chunked trailer)
// to req.
//
// On a protocol violation it returns a *errors.Error with Kind
// KindBadRequest or KindPayloadTooLarge; the caller maps that to a 400 or
// 413 response and closes the connection, per §4.3.4.
func ReadRequestBody(r *bufio.Reader, req *dispatch.Request, framing BodyFraming, cfg Config) error {
	switch {
	case framing.chunked:
		body, trailer, err := readChunkedBody(r, cfg.MaxRequestBodySize)
		if err != nil {
			return err
		}
		req.Body = body
		req.Trailer = trailer
	case framing.sawContentLength && framing.contentLength > 0:
		if framing.contentLength > cfg.MaxRequestBodySize {
			return errors.NewPayloadTooLargeError("read_body", cfg.MaxRequestBodySize, framing.contentLength)
		}
		body := bufpool.Get(int(framing.contentLength))
		if _, err := readFull(r, body); err != nil {
			return errors.NewIOError("read_body", err)
		}
		req.Body = body
	default:
		req.Body = nil
	}
	return nil
}

// ReadRequest parses one complete request (header block and, if
// applicable, body) off r. It blocks on r.ReadSlice/Read until either a
// complete request has been read, or r returns an error (including a
// deadline expiring, surfaced by the caller wrapping r with a deadline).
// It is ReadRequestHead followed by ReadRequestBody for callers that have
// no need to retime the read between the two, e.g. tests.
func ReadRequest(r *bufio.Reader, cfg Config) (*dispatch.Request, error) {
	req, framing, err := ReadRequestHead(r)
	if err != nil {
		return nil, err
	}
	if err := ReadRequestBody(r, req, framing, cfg); err != nil {
		return nil, err
	}
	return req, nil
}

func computeKeepAlive(proto, connection string) bool {
	tokens := splitTokens(connection)
	hasClose := containsFold(tokens, "close")
	hasKeepAlive := containsFold(tokens, "keep-alive")

	if hasClose {
		return false
	}
	if proto == "HTTP/1.1" {
		return true
	}
	return hasKeepAlive
}

func splitTokens(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func containsFold(tokens []string, want string) bool {
	for _, t := range tokens {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}

func parseRequestLine(line string) (method, target, proto string, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", "", errors.NewBadRequestError("parse_request_line", "malformed request line", nil)
	}
	method, target, proto = parts[0], parts[1], parts[2]

	if !isToken(method) || method != strings.ToUpper(method) {
		return "", "", "", errors.NewBadRequestError("parse_request_line", "invalid method token", nil)
	}
	if target == "" {
		return "", "", "", errors.NewBadRequestError("parse_request_line", "empty request target", nil)
	}
	if proto != "HTTP/1.0" && proto != "HTTP/1.1" {
		return "", "", "", errors.NewBadRequestError("parse_request_line", "unsupported HTTP version "+proto, nil)
	}
	return method, target, proto, nil
}

func parseHeaderLine(line string) (name, value string, err error) {
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return "", "", errors.NewBadRequestError("parse_headers", "malformed header line", nil)
	}
	name = line[:colon]
	value = strings.TrimSpace(line[colon+1:])

	if !isToken(name) {
		return "", "", errors.NewBadRequestError("parse_headers", "invalid header name "+name, nil)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return "", "", errors.NewBadRequestError("parse_headers", "invalid header value for "+name, nil)
	}
	return name, value, nil
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !httpguts.IsTokenRune(rune(s[i])) {
			return false
		}
	}
	return true
}

// readLine reads one CRLF-terminated line, stripping the CRLF, and rejects
// lines longer than maxLen before they are fully buffered — the key bound
// that keeps the request-line/header-line reader from growing an
// allocation proportional to an attacker-chosen length.
func readLine(r *bufio.Reader, maxLen int) (string, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return "", errors.NewIOError("read_line", err)
		}
		if len(line)+len(chunk) > maxLen {
			return "", errors.NewBadRequestError("read_line", "line exceeds maximum length", nil)
		}
		line = append(line, chunk...)
		if !isPrefix {
			break
		}
	}
	return string(line), nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
