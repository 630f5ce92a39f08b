package domain

import "errors"

// Error categories. Everything except ErrConfiguration is recovered inside a cycle.
var (
	ErrConnection    = errors.New("remote connection error")
	ErrMalformedLine = errors.New("malformed log line")
	ErrPersistence   = errors.New("offset persistence error")
	ErrPublish       = errors.New("publish error")
	ErrConfiguration = errors.New("configuration error")
)
