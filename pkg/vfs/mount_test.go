package vfs

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pchambers/ucifs/pkg/store"
)

func newTestMount(t *testing.T, source PackageSource) *MountState {
	t.Helper()
	m, err := New(Config{
		Source:          source,
		Store:           store.NewMemory(),
		Uid:             1000,
		Gid:             1000,
		RefreshInterval: 5 * time.Second,
	})
	require.NoError(t, err)
	return m
}

// A cold listing exposes one entry per enumerated package and a link
// count of N+2 for . and .. on the root.
func TestColdDirectoryListing(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network", "/system", "/wireless", "/dhcp"})

	names, err := m.Entries()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"/network", "/system", "/wireless", "/dhcp"}, names)

	require.Equal(t, uint32(6), m.RootStat().Nlink)
}

// Two reconciles within the refresh window collapse into one enumerator
// pass and one epoch bump.
func TestCoalescedRefresh(t *testing.T) {
	src := &countingSource{names: []string{"/network"}}
	m := newTestMount(t, src)
	initialCalls := src.calls
	initialEpoch := m.buildEpoch

	_, err := m.Entries()
	require.NoError(t, err)
	_, err = m.Entries()
	require.NoError(t, err)

	require.Equal(t, initialCalls, src.calls, "enumerator should not be called again inside the refresh window")
	require.Equal(t, initialEpoch, m.buildEpoch)
}

// An entry missing from a later pass is swept from the listing.
func TestSweepRemoval(t *testing.T) {
	src := &mutableSource{names: []string{"/a", "/b", "/c"}}
	m := newTestMount(t, src)
	require.NoError(t, m.Reconcile())

	src.names = []string{"/a", "/c"}
	require.NoError(t, m.Reconcile())

	names, err := m.Entries()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"/a", "/c"}, names)

	_, err = m.Lookup("/b")
	require.ErrorIs(t, err, ErrNotFound)
}

// The sweep removes stale entries dirty or not; a handle still holding the
// swept entry commits its pending edit on release regardless.
func TestSweepRemovesDirtyEntry(t *testing.T) {
	src := &mutableSource{names: []string{"/a", "/b"}}
	m := newTestMount(t, src)
	require.NoError(t, m.Reconcile())

	e, err := m.Lookup("/b")
	require.NoError(t, err)
	_, werr := m.Write(e, 0, []byte("config system\n\toption hostname router\n"))
	require.NoError(t, werr)

	src.names = []string{"/a"}
	require.NoError(t, m.Reconcile())

	_, err = m.Lookup("/b")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Release(e))
	pkg, err := m.translator.Render("b")
	require.NoError(t, err)
	require.Equal(t, "router", pkg.Sections[0].Option("hostname").Value)
}

// Duplicate paths from the enumerator coalesce into one listing entry.
func TestDuplicateEnumerationCoalesces(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network", "/network", "/system"})

	names, err := m.Entries()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"/network", "/system"}, names)
	require.Equal(t, uint32(4), m.RootStat().Nlink)
}

// Forced back-to-back reconciles with an unchanged enumerator leave the
// entry set unchanged, down to the identity of every FileEntry.
func TestReconcileIdempotence(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network", "/system"})
	require.NoError(t, m.Reconcile())

	before := make(map[string]*FileEntry, len(m.entries))
	for path, e := range m.entries {
		before[path] = e
	}

	require.NoError(t, m.Reconcile())
	require.Len(t, m.entries, len(before))
	for path, e := range m.entries {
		require.Same(t, before[path], e, "entry %s must survive reconcile untouched", path)
	}
}

// Every surviving entry carries the current build epoch after a pass.
func TestReconcileStampsEveryEntry(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network", "/system", "/dhcp"})
	require.NoError(t, m.Reconcile())
	for path, e := range m.entries {
		require.Equal(t, m.buildEpoch, e.buildStamp, "entry %s", path)
	}
}

// TestNewEntriesArePopulatedOnReconcile: an entry created by the mark phase
// is populated immediately, so the first getattr after a listing already
// reports the rendered size.
func TestNewEntriesArePopulatedOnReconcile(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network"})

	e, err := m.Lookup("/network")
	require.NoError(t, err)
	payload := []byte("config interface 'lan'\n\toption ifname 'eth0'\n")
	_, err = m.Write(e, 0, payload)
	require.NoError(t, err)
	require.NoError(t, m.Release(e))

	// A second mount over the same store sees the committed content as soon
	// as its first reconcile creates the entry.
	m2, err := New(Config{
		Source: StaticSource{"/network"},
		Store:  m.store,
		Uid:    1000,
		Gid:    1000,
	})
	require.NoError(t, err)
	e2, err := m2.Lookup("/network")
	require.NoError(t, err)
	size := m2.Stat(e2).Size
	require.Greater(t, size, int64(0))

	buf := make([]byte, size)
	n, eof := m2.Read(e2, 0, buf)
	require.False(t, eof)
	require.Contains(t, string(buf[:n]), "option ifname eth0")
}

func TestCreateAppendsEntry(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network"})
	nlinkBefore := m.RootStat().Nlink

	e, err := m.Create("/firewall", 0)
	require.NoError(t, err)
	require.Equal(t, int64(0), m.Stat(e).Size)

	got, err := m.Lookup("/firewall")
	require.NoError(t, err)
	require.Same(t, e, got)
	require.Equal(t, nlinkBefore+1, m.rootMeta.Nlink)

	// Creating the same path again returns the existing entry.
	again, err := m.Create("/firewall", 0)
	require.NoError(t, err)
	require.Same(t, e, again)

	_, err = m.Create("/", 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

// A created entry is swept on the next pass because the source never
// reported it; the creator's handle still commits on release.
func TestCreatedEntrySweptOnReconcile(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network"})

	e, err := m.Create("/firewall", 0)
	require.NoError(t, err)
	_, werr := m.Write(e, 0, []byte("config defaults\n\toption input ACCEPT\n"))
	require.NoError(t, werr)

	require.NoError(t, m.Reconcile())
	_, err = m.Lookup("/firewall")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Release(e))
	pkg, err := m.translator.Render("firewall")
	require.NoError(t, err)
	require.Equal(t, "ACCEPT", pkg.Sections[0].Option("input").Value)
}

// Whatever randomized interleaving of writes, truncates, creates, and
// reconciles runs, paths stay unique and every digest matches its path.
func TestEntrySetWellFormed(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pool := []string{"/a", "/b", "/c", "/d", "/e"}
	src := &mutableSource{names: pool}
	m := newTestMount(t, src)

	for step := 0; step < 200; step++ {
		switch rng.Intn(4) {
		case 0:
			subset := pool[:1+rng.Intn(len(pool))]
			src.names = subset
			require.NoError(t, m.Reconcile())
		case 1:
			path := pool[rng.Intn(len(pool))]
			if e, err := m.Lookup(path); err == nil {
				_, werr := m.Write(e, int64(rng.Intn(64)), []byte("config system\n"))
				require.NoError(t, werr)
			}
		case 2:
			path := pool[rng.Intn(len(pool))]
			if e, err := m.Lookup(path); err == nil {
				require.NoError(t, m.Truncate(e, int64(rng.Intn(128))))
			}
		case 3:
			_, err := m.Create("/x"+pool[rng.Intn(len(pool))][1:], 0)
			require.NoError(t, err)
		}

		seen := make(map[string]bool, len(m.entries))
		for path, e := range m.entries {
			require.False(t, seen[path])
			seen[path] = true
			require.Equal(t, path, e.path)
			require.Equal(t, hashString(path), e.pathDigest)
			if e.buffer != nil {
				require.Equal(t, int64(len(e.buffer)), e.meta.Size)
			}
		}
	}
}

type countingSource struct {
	names []string
	calls int
}

func (c *countingSource) Iterate(i int) (string, bool) {
	if i == 0 {
		c.calls++
	}
	if i < 0 || i >= len(c.names) {
		return "", false
	}
	return c.names[i], true
}

type mutableSource struct{ names []string }

func (m *mutableSource) Iterate(i int) (string, bool) {
	if i < 0 || i >= len(m.names) {
		return "", false
	}
	return m.names[i], true
}
