package vfs

import "errors"

// Errors surfaced to pkg/fusefs, which maps each to a syscall.Errno.
var (
	// ErrNotFound: path does not match any FileEntry.
	ErrNotFound = errors.New("no such file")
	// ErrInvalidArgument: empty path, or a negative truncate size.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoMemory: mapped to ENOMEM by pkg/fusefs. No function in this
	// package returns it; Write grows the buffer with make, which panics
	// rather than returning an error when allocation fails.
	ErrNoMemory = errors.New("no memory")
)
