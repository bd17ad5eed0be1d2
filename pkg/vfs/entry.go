package vfs

import (
	"time"

	"github.com/pchambers/ucifs/pkg/uci"
)

// FileEntry is the per-file virtual buffer backing one package's text
// representation. The buffer is populated from the backing store when the
// reconciler first creates the entry and again on each open, read/written at
// arbitrary offsets, and committed back on release only if it was written to.
type FileEntry struct {
	mount *MountState

	path string
	// pathDigest is a cached hash of path. Lookup goes through the entries
	// map, so the digest is never consulted on the hot path; it exists as a
	// cheap equality shortcut for callers that hold two entries and want to
	// compare them without string comparison.
	pathDigest uint32

	meta Stat

	buffer []byte
	dirty  bool

	// buildStamp is the buildEpoch as of the last time Reconcile's mark
	// phase saw this entry; sweep removes anything left stale.
	buildStamp int64
}

func newFileEntry(mount *MountState, path string, epoch int64) *FileEntry {
	now := time.Now()
	return &FileEntry{
		mount:      mount,
		path:       path,
		pathDigest: hashString(path),
		meta: Stat{
			Mode:  defaultFileMode,
			Size:  initialFileSize,
			Nlink: 1,
			Uid:   mount.uid,
			Gid:   mount.gid,
			Atime: now,
			Mtime: now,
			Ctime: now,
		},
		buildStamp: epoch,
	}
}

// hashString is a djb2-style multiply-and-xor hash over the path bytes.
func hashString(s string) uint32 {
	var h uint32 = 0xDeadBeef
	for i := 0; i < len(s); i++ {
		h = h*43 ^ uint32(s[i])
	}
	return h
}

// Populate renders the package from the backing store and installs the
// result as the buffer. A dirty entry is left untouched: local edits stay
// authoritative until they are committed, so a concurrent getattr or re-open
// can never clobber an in-progress write.
func (f *FileEntry) Populate() error {
	if f.dirty {
		return nil
	}
	pkg, err := f.mount.translator.Render(pkgName(f.path))
	if err != nil {
		return err
	}
	f.buffer = uci.Serialize(pkg)
	f.meta.Size = int64(len(f.buffer))
	return nil
}

// Read copies up to len(p) bytes starting at offset into p, returning the
// bytes copied and whether offset was at or past the end of the buffer. EOF
// is an explicit flag, never a negative count, so callers can map it to the
// zero-length read(2) convention.
func (f *FileEntry) Read(offset int64, p []byte) (n int, eof bool) {
	f.meta.Atime = time.Now()
	if offset < 0 || offset >= int64(len(f.buffer)) {
		return 0, true
	}
	n = copy(p, f.buffer[offset:])
	return n, false
}

// Write copies p into the buffer at offset, growing it zero-filled as
// needed, and marks the entry dirty.
func (f *FileEntry) Write(offset int64, p []byte) (int, error) {
	if offset < 0 {
		return 0, ErrInvalidArgument
	}
	end := offset + int64(len(p))
	if end > int64(len(f.buffer)) {
		grown := make([]byte, end)
		copy(grown, f.buffer)
		f.buffer = grown
	}
	copy(f.buffer[offset:end], p)
	f.dirty = true
	f.meta.Size = int64(len(f.buffer))
	f.meta.Mtime = time.Now()
	return len(p), nil
}

// Truncate resizes the buffer to size, zero-filling on growth. The dirty
// flag is untouched; only Write marks an entry dirty, so an open-with-
// truncate that is closed without ever writing never commits anything.
func (f *FileEntry) Truncate(size int64) error {
	if size < 0 {
		return ErrInvalidArgument
	}
	switch {
	case size == 0:
		// Truncate-to-zero drops the buffer outright rather than keeping a
		// zero-length allocation around.
		f.buffer = nil
	case size == int64(len(f.buffer)):
	case size < int64(len(f.buffer)):
		f.buffer = f.buffer[:size]
	default:
		grown := make([]byte, size)
		copy(grown, f.buffer)
		f.buffer = grown
	}
	f.meta.Size = size
	f.meta.Mtime = time.Now()
	return nil
}

// ParseAndCommit parses the current buffer and translates it into the
// backing store. A no-op unless the buffer is present and was written to.
// On either failure the dirty flag is left set rather than cleared, so a
// subsequent release (or flush) keeps retrying instead of
// silently losing the edit.
func (f *FileEntry) ParseAndCommit() error {
	if f.buffer == nil || !f.dirty {
		return nil
	}
	pkg, err := uci.Parse(pkgName(f.path), f.buffer)
	if err != nil {
		f.mount.metrics.parseFailures.Inc()
		logger.Warnf("parse %s: %s", f.path, err)
		return err
	}
	if err := f.mount.translator.Commit(pkg); err != nil {
		f.mount.metrics.commitFailures.Inc()
		return err
	}
	f.dirty = false
	return nil
}

// Release runs ParseAndCommit only if the entry was actually written to.
func (f *FileEntry) Release() error {
	if !f.dirty {
		return nil
	}
	return f.ParseAndCommit()
}

func (f *FileEntry) Stat() Stat {
	return f.meta
}

// String implements fmt.Stringer so logging call sites can print an entry
// directly instead of reaching into its unexported path field.
func (f *FileEntry) String() string {
	return f.path
}

func pkgName(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path[1:]
	}
	return path
}
