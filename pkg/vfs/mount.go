// Package vfs implements the mountable content model of the filesystem:
// the root directory cache (component A), the per-file buffer (component
// B, in entry.go), and the mark-and-sweep reconciler (component C) that
// keeps the two in sync with the configuration package source. It is kept
// free of any FUSE API so it can be unit tested without a kernel, and
// pkg/fusefs is the only package that binds it to github.com/hanwen/go-fuse.
package vfs

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pchambers/ucifs/pkg/store"
	"github.com/pchambers/ucifs/pkg/translate"
	"github.com/pchambers/ucifs/pkg/utils"
)

var logger = utils.GetLogger("vfs")

// MountState is the single point of synchronization for one mounted
// filesystem instance: one coarse lock guards both the root directory cache
// and every FileEntry, since the kernel dispatches callbacks from a worker
// pool with no serialization of its own.
type MountState struct {
	mu sync.RWMutex

	uid, gid uint32
	rootMeta Stat

	source     PackageSource
	store      store.Store
	translator *translate.Translator

	refreshInterval time.Duration
	lastRefresh     time.Time
	buildEpoch      int64

	entries map[string]*FileEntry
	order   []string // stable directory listing order

	metrics *metrics
}

// Config collects the dependencies and knobs MountState needs at
// construction; it is what cmd/ucifs/main.go builds from CLI flags.
type Config struct {
	Source          PackageSource
	Store           store.Store
	Uid, Gid        uint32
	RefreshInterval time.Duration
	Registerer      prometheus.Registerer
}

// New builds a MountState and performs the first reconcile pass so the root
// directory is populated before any lookup arrives.
func New(cfg Config) (*MountState, error) {
	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = 5 * time.Second
	}
	now := time.Now()
	m := &MountState{
		uid:             cfg.Uid,
		gid:             cfg.Gid,
		source:          cfg.Source,
		store:           cfg.Store,
		translator:      translate.New(cfg.Store),
		refreshInterval: refresh,
		entries:         make(map[string]*FileEntry),
		metrics:         newMetrics(cfg.Registerer),
		rootMeta: Stat{
			Mode:  rootMode,
			Size:  rootSize,
			Nlink: 2,
			Uid:   cfg.Uid,
			Gid:   cfg.Gid,
			Atime: now,
			Mtime: now,
			Ctime: now,
		},
	}
	if err := m.reconcileLocked(); err != nil {
		return nil, err
	}
	return m, nil
}

// RootStat triggers a reconcile if the refresh window has elapsed and
// returns the root directory's attributes with atime stamped to now.
func (m *MountState) RootStat() Stat {
	if err := m.maybeReconcile(); err != nil {
		logger.Warnf("reconcile: %s", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rootMeta.Atime = time.Now()
	return m.rootMeta
}

// Entries returns the current root directory listing, reconciling first if
// the refresh window has elapsed. The returned slice is a stable-ordered
// snapshot safe for the caller to range over without holding any lock.
func (m *MountState) Entries() ([]string, error) {
	if err := m.maybeReconcile(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out, nil
}

// Lookup returns the FileEntry for path, reconciling first if the refresh
// window has elapsed. ErrNotFound is returned if path does not name a
// current package file.
func (m *MountState) Lookup(path string) (*FileEntry, error) {
	if err := m.maybeReconcile(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[path]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Create makes a FileEntry for a package name the reconciler has not yet
// seen, returning the existing entry if one is already present. mode == 0 is
// substituted with the regular-file default. The root directory's
// mtime/ctime and link count advance because its entry set changed. A
// created entry lives in the listing only until the next reconcile sweeps
// it; the creator's open handle keeps its own reference, so an edit in
// progress still commits on release.
func (m *MountState) Create(path string, mode os.FileMode) (*FileEntry, error) {
	if path == "" || path == "/" {
		return nil, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[path]; ok {
		return e, nil
	}
	e := newFileEntry(m, path, m.buildEpoch)
	if mode != 0 {
		e.meta.Mode = mode
	}
	e.meta.Size = 0
	m.entries[path] = e
	m.order = append(m.order, path)
	sort.Strings(m.order)
	now := time.Now()
	m.rootMeta.Mtime = now
	m.rootMeta.Ctime = now
	m.rootMeta.Nlink = uint32(len(m.order)) + 2
	m.metrics.rootEntries.Set(float64(len(m.order)))
	return e, nil
}

// maybeReconcile coalesces reconcile passes to at most once per
// refreshInterval, bounding the rebuild rate under burst directory access.
func (m *MountState) maybeReconcile() error {
	m.mu.RLock()
	due := time.Since(m.lastRefresh) >= m.refreshInterval
	m.mu.RUnlock()
	if !due {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Re-check under the write lock: another goroutine may have already
	// reconciled while we waited for it.
	if time.Since(m.lastRefresh) < m.refreshInterval {
		return nil
	}
	return m.reconcileLocked()
}

// reconcileLocked rebuilds the root directory listing from the package
// source by mark-and-sweep: every package the source still reports gets its
// FileEntry's buildStamp bumped to the new epoch (creating one if absent);
// anything left with a stale stamp afterward is swept, dirty or not. An open
// file handle holds its own reference to a swept entry, so a pending edit
// still commits on release; the entry just no longer appears in listings.
// Caller must hold mu for writing.
func (m *MountState) reconcileLocked() error {
	start := time.Now()
	epoch := m.buildEpoch + 1

	m.rootMeta.Atime = start
	m.rootMeta.Mtime = start
	m.rootMeta.Ctime = start
	m.rootMeta.Mode = rootMode
	m.rootMeta.Size = rootSize

	var order []string
	for i := 0; ; i++ {
		path, ok := m.source.Iterate(i)
		if !ok {
			break
		}
		e, exists := m.entries[path]
		if !exists {
			e = newFileEntry(m, path, epoch)
			if err := e.Populate(); err != nil {
				logger.Warnf("populate %s: %s", path, err)
			}
			m.entries[path] = e
		} else {
			if e.buildStamp == epoch {
				// Duplicate from the enumerator within this pass; coalesce
				// with the first occurrence.
				continue
			}
			e.buildStamp = epoch
		}
		order = append(order, path)
	}

	for path, e := range m.entries {
		if e.buildStamp != epoch {
			delete(m.entries, path)
		}
	}

	sort.Strings(order)
	m.order = order
	m.buildEpoch = epoch
	m.lastRefresh = start
	m.rootMeta.Nlink = uint32(len(order)) + 2

	m.metrics.rootEntries.Set(float64(len(order)))
	m.metrics.buildEpoch.Set(float64(epoch))
	m.metrics.reconcileSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// Reconcile forces an immediate reconcile pass, bypassing the coalescing
// window; used by tests and by an explicit refresh trigger if one is wired
// in cmd/ucifs later.
func (m *MountState) Reconcile() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconcileLocked()
}

// Populate fills e's buffer from the backing store if needed, holding the
// mount's single lock for the duration.
func (m *MountState) Populate(e *FileEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return e.Populate()
}

// Read copies from e's buffer under the mount lock. This takes the writer
// lock rather than a reader lock because Read stamps e.meta.Atime, and two
// concurrent readers both updating that field under a shared RLock would be
// a data race.
func (m *MountState) Read(e *FileEntry, offset int64, p []byte) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return e.Read(offset, p)
}

// Write copies into e's buffer under the mount lock.
func (m *MountState) Write(e *FileEntry, offset int64, p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return e.Write(offset, p)
}

// Truncate resizes e's buffer under the mount lock.
func (m *MountState) Truncate(e *FileEntry, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return e.Truncate(size)
}

// Stat returns e's current attributes under the mount lock.
func (m *MountState) Stat(e *FileEntry) Stat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return e.Stat()
}

// Release runs the given entry's commit-on-release and, regardless of
// outcome, lets the caller observe any error (pkg/fusefs logs it; it never
// turns into a syscall failure).
func (m *MountState) Release(e *FileEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return e.Release()
}

// Destroy closes the backing store. Safe to call once, at unmount.
func (m *MountState) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Close()
}
