//go:build !linux

package transport

import (
	"errors"
	"runtime"
)

// Open is only implemented on Linux.
func Open(path string) (Transport, error) {
	return nil, &Error{Kind: NotSupported, Op: "open " + path, Err: errors.New("pass-through is not available on " + runtime.GOOS)}
}
