// Package store models the backing typed key/value tree the translator
// commits into: entries with metadata, addressed by '/'-delimited key paths
// rooted at "system:/config".
package store

import "github.com/pchambers/ucifs/pkg/utils"

var logger = utils.GetLogger("store")

// Entry is one key/value leaf or interior node in the store, carrying the
// metadata the translator attaches (type, array, section type, ...).
type Entry struct {
	Key   string
	Value string
	Meta  map[string]string
}

// Store is the typed-tree key/value backend the translator commits into and
// the content pipeline renders package text from.
type Store interface {
	// Open begins a transaction rooted at root, pre-loading its current
	// contents as the store's API contract requires before any Set/Commit.
	Open(root string) (Txn, error)

	// Walk returns every entry whose key is root or a descendant of root,
	// in an unspecified but stable-within-a-call order.
	Walk(root string) ([]Entry, error)

	// Close releases any resources held by the store (connections, etc).
	Close() error
}

// Txn accumulates a key-set in memory and commits it as a single call:
// preload, accumulate, commit.
type Txn interface {
	// Set stages key with value and metadata for the next Commit.
	Set(key, value string, meta map[string]string)

	// Delete stages key (and, if recursive, everything beneath it) for
	// removal on the next Commit. Used to clear a package subtree before
	// writing its freshly-translated replacement.
	Delete(key string, recursive bool)

	// Commit writes the accumulated key-set in one call and resets the
	// transient arena. A non-nil result is logged by the caller, never
	// surfaced as a filesystem error.
	Commit() error
}
