// CLAUDE:SUMMARY HTTP guard middleware for the formpilot API: loopback-only access, API security headers, body limits, request IDs.
// Package shield holds the HTTP middleware placed in front of the formpilot
// API. The API drives a browser holding personal profile data, so by default
// it only answers loopback clients.
//
// Usage:
//
//	h := shield.Wrap(agent.Handler(), shield.Config{})
//	srv := &http.Server{Handler: h}
package shield

import "net/http"

// Config configures the middleware stack.
type Config struct {
	// AllowRemote accepts non-loopback clients.
	AllowRemote bool

	// MaxBody caps request bodies. Default: 1 MiB.
	MaxBody int64

	// Exempt paths skip the loopback check (e.g. "/healthz").
	Exempt []string
}

// Stack returns the middleware in application order:
// RequestID, SecurityHeaders, LoopbackOnly, MaxBody.
func Stack(cfg Config) []func(http.Handler) http.Handler {
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 1 << 20
	}
	stack := []func(http.Handler) http.Handler{
		RequestID,
		SecurityHeaders(DefaultHeaders()),
	}
	if !cfg.AllowRemote {
		stack = append(stack, LoopbackOnly(cfg.Exempt...))
	}
	return append(stack, MaxBody(cfg.MaxBody))
}

// Wrap applies Stack(cfg) around h; the first middleware is outermost.
func Wrap(h http.Handler, cfg Config) http.Handler {
	stack := Stack(cfg)
	for i := len(stack) - 1; i >= 0; i-- {
		h = stack[i](h)
	}
	return h
}
