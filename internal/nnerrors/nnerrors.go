// Package nnerrors holds the sentinel error values shared across the
// cache, distributed client/server, and config packages, so callers can
// errors.Is against a stable error kind instead of matching strings.
package nnerrors

import "errors"

var (
	ErrMalformed   = errors.New("malformed input")
	ErrResolve     = errors.New("address resolution failed")
	ErrConnect     = errors.New("connection failed")
	ErrHandshake   = errors.New("handshake failed")
	ErrTimeout     = errors.New("operation timed out")
	ErrIO          = errors.New("i/o error")
	ErrDecode      = errors.New("decode error")
	ErrExhausted   = errors.New("resource exhausted")
	ErrUnsupported = errors.New("unsupported")
)
