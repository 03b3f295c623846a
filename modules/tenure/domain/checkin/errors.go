package checkin

import "errors"

var (
	ErrAlreadyFinalized = errors.New("check-in is already finalized")
	ErrNotReady         = errors.New("check-in is not ready for finalization")
	ErrUnknownSide      = errors.New("unknown check-in side")
)
