// Package middleware composes per-route middleware chains from loaded
// extensions.
package middleware

import (
	"github.com/labstack/echo/v4"
)

// Chain is an ordered list of wrappers applied to a handler.
type Chain struct {
	wrappers []echo.MiddlewareFunc
}

// NewChain creates a new middleware chain.
func NewChain(wrappers ...echo.MiddlewareFunc) *Chain {
	return &Chain{
		wrappers: append([]echo.MiddlewareFunc(nil), wrappers...),
	}
}

// Then composes the chain around h. Wrappers are applied in reverse list
// order, so the first wrapper in the chain runs outermost at call time.
func (c *Chain) Then(h echo.HandlerFunc) echo.HandlerFunc {
	if h == nil {
		h = func(echo.Context) error {
			return nil
		}
	}

	for i := len(c.wrappers) - 1; i >= 0; i-- {
		h = c.wrappers[i](h)
	}

	return h
}

// Append returns a new chain with wrappers added at the end.
func (c *Chain) Append(wrappers ...echo.MiddlewareFunc) *Chain {
	next := &Chain{
		wrappers: make([]echo.MiddlewareFunc, len(c.wrappers)+len(wrappers)),
	}
	copy(next.wrappers, c.wrappers)
	copy(next.wrappers[len(c.wrappers):], wrappers)
	return next
}

// Len returns the number of wrappers in the chain.
func (c *Chain) Len() int {
	return len(c.wrappers)
}
