package csp

import "errors"

var (
	ErrInvalidDirective = errors.New("invalid CSP directive")
	ErrSetNotFound      = errors.New("source set not found")
	ErrInvalidValue     = errors.New("invalid value")
	ErrInvalidOrigin    = errors.New("invalid origin")
	ErrDecode           = errors.New("unable to decode policy definition")
)
