package vault

import "errors"

// ErrNotFound is returned when requested content or metadata is not in the vault.
var ErrNotFound = errors.New("not found in vault")
