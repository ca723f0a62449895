package http1

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/WhileEndless/go-rawserver/pkg/dispatch"
	"github.com/WhileEndless/go-rawserver/pkg/errors"
)

// readChunkedBody reads a chunked transfer-coded body per RFC 9112 §7.1,
// checking the running total against maxBodySize before each append so a
// chunked body can never grow the accumulator past the configured bound.
func readChunkedBody(r *bufio.Reader, maxBodySize int64) ([]byte, dispatch.Header, error) {
	var body []byte
	var total int64

	for {
		sizeLine, err := readLine(r, MaxRequestLineLen)
		if err != nil {
			return nil, dispatch.Header{}, err
		}

		sizeHex := sizeLine
		if semi := strings.IndexByte(sizeLine, ';'); semi >= 0 {
			sizeHex = sizeLine[:semi]
		}
		sizeHex = strings.TrimSpace(sizeHex)

		size, convErr := strconv.ParseInt(sizeHex, 16, 64)
		if convErr != nil || size < 0 {
			return nil, dispatch.Header{}, errors.NewBadRequestError("read_chunked_body", "invalid chunk size", convErr)
		}

		if size == 0 {
			trailer, err := readTrailer(r)
			if err != nil {
				return nil, dispatch.Header{}, err
			}
			return body, trailer, nil
		}

		total += size
		if total > maxBodySize {
			return nil, dispatch.Header{}, errors.NewPayloadTooLargeError("read_chunked_body", maxBodySize, total)
		}

		chunk := make([]byte, size)
		if _, err := readFull(r, chunk); err != nil {
			return nil, dispatch.Header{}, errors.NewIOError("read_chunked_body", err)
		}
		body = append(body, chunk...)

		// Each chunk's data is followed by a bare CRLF.
		crlf, err := readLine(r, 2)
		if err != nil {
			return nil, dispatch.Header{}, err
		}
		if crlf != "" {
			return nil, dispatch.Header{}, errors.NewBadRequestError("read_chunked_body", "malformed chunk terminator", nil)
		}
	}
}

func readTrailer(r *bufio.Reader) (dispatch.Header, error) {
	var trailer dispatch.Header
	for {
		line, err := readLine(r, MaxRequestLineLen)
		if err != nil {
			return dispatch.Header{}, err
		}
		if line == "" {
			return trailer, nil
		}
		name, value, err := parseHeaderLine(line)
		if err != nil {
			return dispatch.Header{}, err
		}
		trailer.Add(name, value)
	}
}
