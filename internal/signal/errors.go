package signal

import "errors"

// ErrInvalidWindow is returned when a smoothing window does not fit the
// signal.
var ErrInvalidWindow = errors.New("invalid window")
