package dispatch

import (
	"encoding/json"
	"fmt"
)

// Problem is the application/problem+json body (RFC 9457) the core uses
// for every protocol-level failure response.
type Problem struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

const problemContentType = "application/problem+json"

// NewProblemResponse builds a Response carrying a problem-details body for
// status with the given title/detail.
func NewProblemResponse(status int, title, detail string) *Response {
	p := Problem{Title: title, Status: status, Detail: detail}
	body, err := json.Marshal(p)
	if err != nil {
		// json.Marshal on a struct of strings and an int cannot fail; this
		// is only reachable if Problem's shape changes incompatibly.
		body = []byte(fmt.Sprintf(`{"title":%q,"status":%d}`, title, status))
	}
	resp := &Response{Status: status, Body: body, ContentType: problemContentType}
	resp.Header.Set("Content-Type", problemContentType)
	return resp
}

// NotFound produces the core's 404 mapping for an unknown route.
func NotFound(path string) *Response {
	return NewProblemResponse(404, "Not Found", "no route matches "+path)
}

// PayloadTooLarge produces the core's 413 mapping.
func PayloadTooLarge(limit int64) *Response {
	return NewProblemResponse(413, "Payload Too Large", fmt.Sprintf("body exceeds the configured limit of %d bytes", limit))
}

// UnsupportedMediaType produces the core's 415 mapping.
func UnsupportedMediaType(contentType string) *Response {
	return NewProblemResponse(415, "Unsupported Media Type", "content type "+contentType+" is not supported")
}

// BadRequest produces the core's 400 mapping for a rejected HTTP/1.1 request.
func BadRequest(detail string) *Response {
	return NewProblemResponse(400, "Bad Request", detail)
}

// RequestTimeout produces the core's 408 mapping for a deadline expiring
// mid-request, per spec §4.3.4 ("reply 408 if any bytes had been read").
func RequestTimeout() *Response {
	return NewProblemResponse(408, "Request Timeout", "the client did not complete the request within the configured timeout")
}

// InternalError produces the core's 500 mapping for a handler panic/error.
func InternalError(cause error) *Response {
	detail := "the handler failed to produce a response"
	if cause != nil {
		detail = cause.Error()
	}
	return NewProblemResponse(500, "Internal Server Error", detail)
}
