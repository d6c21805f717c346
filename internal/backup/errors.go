package backup

import "errors"

// ErrNotFound is returned by vaults for keys they do not hold.
var ErrNotFound = errors.New("snapshot not found")
