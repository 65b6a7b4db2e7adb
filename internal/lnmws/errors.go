package lnmws

import "errors"

// Event loop failure modes. All are recoverable from the sync supervisor's
// point of view: a failed connection should be rebuilt from scratch, not
// retried in place.
var (
	ErrNoServerPong              = errors.New("lnmws: no pong received within a heartbeat after ping")
	ErrNoServerCloseConfirmation = errors.New("lnmws: no close confirmation received within a heartbeat")
	ErrServerRequestedClose      = errors.New("lnmws: server requested close")
)
