package h2stream

import (
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/WhileEndless/go-rawserver/pkg/errors"
	"github.com/WhileEndless/go-rawserver/pkg/hpack"
)

// connectionSpecificHeaders lists the headers that are meaningless in
// HTTP/2 because the framing layer replaces what they used to do in
// HTTP/1.1 (RFC 7540 §8.1.2.2).
var connectionSpecificHeaders = map[string]bool{
	"connection":        true,
	"keep-alive":        true,
	"proxy-connection":  true,
	"transfer-encoding":  true,
	"upgrade":           true,
}

var requiredRequestPseudoHeaders = []string{":method", ":path", ":scheme"}

// ValidateRequestHeaders enforces RFC 7540 §8.1.2's request header-list
// rules: pseudo-headers precede regular headers, the required request
// pseudo-headers are present, no connection-specific headers leak through,
// and every name/value is well-formed per the HTTP field grammar.
func ValidateRequestHeaders(headers []hpack.HeaderField, maxHeaderListSize int) error {
	seenRegular := false
	seenPseudo := map[string]bool{}
	cum := 0

	for _, f := range headers {
		cum += len(f.Name) + len(f.Value)
		if cum > maxHeaderListSize {
			return errors.NewCompressionError("validate_headers", "header list exceeds max_header_list_size", nil)
		}

		if strings.HasPrefix(f.Name, ":") {
			if seenRegular {
				return errors.NewProtocolError("validate_headers", "pseudo-header after regular header", nil)
			}
			seenPseudo[f.Name] = true
			continue
		}

		seenRegular = true

		if connectionSpecificHeaders[f.Name] {
			return errors.NewProtocolError("validate_headers", "connection-specific header "+f.Name+" not allowed", nil)
		}
		if f.Name != strings.ToLower(f.Name) {
			return errors.NewProtocolError("validate_headers", "header name "+f.Name+" is not lowercase", nil)
		}
		if !httpguts.ValidHeaderFieldName(f.Name) {
			return errors.NewProtocolError("validate_headers", "invalid header name "+f.Name, nil)
		}
		if !httpguts.ValidHeaderFieldValue(f.Value) {
			return errors.NewProtocolError("validate_headers", "invalid header value for "+f.Name, nil)
		}
	}

	for _, want := range requiredRequestPseudoHeaders {
		if !seenPseudo[want] {
			return errors.NewProtocolError("validate_headers", "missing required pseudo-header "+want, nil)
		}
	}

	return nil
}
