package dispatch

import (
	"context"
	"fmt"
)

// Invoke calls handler with req, catching both a returned nil Response and
// a panic escaping the handler, and converting either into the core's
// standard 500 problem-details response. This is the only place in the
// core that recovers a panic: everywhere else, an unexpected error is a
// programming mistake that should crash loudly in development.
func Invoke(ctx context.Context, handler Handler, req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = InternalError(fmt.Errorf("panic: %v", r))
		}
	}()

	resp = handler.Handle(ctx, req)
	if resp == nil {
		resp = InternalError(fmt.Errorf("handler returned a nil response"))
	}
	return resp
}
