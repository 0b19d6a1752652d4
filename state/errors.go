package state

import "errors"

var (
	ErrDecryption        = errors.New("decryption failed")
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrNoRoute           = errors.New("no route")
	ErrNodeStopped       = errors.New("node is not running")
	ErrInvalidConfig     = errors.New("invalid configuration")
)
