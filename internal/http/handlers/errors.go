package handlers

import (
	"errors"
	"fmt"
)

var errNotConfigured = errors.New("not configured")

type heapError struct{ used, limit uint64 }

func (e *heapError) Error() string {
	return fmt.Sprintf("heap %d MiB exceeds %d MiB", e.used>>20, e.limit>>20)
}
