package rpc

import (
	"context"
)

// Handler serves one request payload. On the server the originating peer is
// available through GetPeerFromContext.
type Handler func(context.Context, []byte) ([]byte, error)
type Middleware func(context.Context, []byte, Handler) ([]byte, error)

func buildHandlerFunction(middleware []Middleware, final Handler) Handler {

	// start with the final handler
	chain := final

	// wrap from the innermost middleware outwards
	for i := len(middleware) - 1; i >= 0; i-- {
		m := middleware[i]
		next := chain
		chain = func(ctx context.Context, req []byte) ([]byte, error) {
			return m(ctx, req, next)
		}
	}

	return chain
}

func ApplyHandlerChain(ctx context.Context, req []byte, middleware []Middleware, final Handler) ([]byte, error) {
	fn := buildHandlerFunction(middleware, final)
	return fn(ctx, req)
}
