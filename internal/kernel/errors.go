package kernel

import "errors"

// ErrRegistration is returned for unknown, duplicate or inconsistent
// names in registries and definitions.
var ErrRegistration = errors.New("registration error")
