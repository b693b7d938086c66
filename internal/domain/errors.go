package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrBadPayload   = errors.New("malformed round payload")
	ErrBadSignature = errors.New("payload signature invalid")
	ErrNoQuorum     = errors.New("round ended without quorum")
	ErrRoundTimeout = errors.New("round timed out")
	ErrBadTokenPath = errors.New("invalid token path")
	ErrLockHeld     = errors.New("lock already held")
)
