package vfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Writing (o, b) then reading (o, |b|) yields b back.
func TestWriteReadRoundTrip(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network"})
	e, err := m.Lookup("/network")
	require.NoError(t, err)

	payload := []byte("option hostname 'router'\n")
	n, err := m.Write(e, 0, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	got, eof := m.Read(e, 0, buf)
	require.False(t, eof)
	require.Equal(t, payload, buf[:got])
}

// A read at or past the end of the buffer reports eof with a zero count,
// never a negative length.
func TestReadPastEOF(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network"})
	e, err := m.Lookup("/network")
	require.NoError(t, err)
	require.NoError(t, m.Populate(e))

	buf := make([]byte, 16)
	size := m.Stat(e).Size
	n, eof := m.Read(e, size, buf)
	require.True(t, eof)
	require.Equal(t, 0, n)
}

// Reading a previously-unwritten gap below the max offset yields zero
// bytes.
func TestReadGapIsZeroFilled(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network"})
	e, err := m.Lookup("/network")
	require.NoError(t, err)

	_, err = m.Write(e, 10, []byte("x"))
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, eof := m.Read(e, 0, buf)
	require.False(t, eof)
	require.Equal(t, 10, n)
	for _, b := range buf {
		require.Equal(t, byte(0), b)
	}
}

// Truncate shrinks and zero-drops exactly as ftruncate(2) would, and a
// negative size is an invalid argument.
func TestTruncateSemantics(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network"})
	e, err := m.Lookup("/network")
	require.NoError(t, err)

	_, err = m.Write(e, 0, []byte("hello world"))
	require.NoError(t, err)

	require.NoError(t, m.Truncate(e, 5))
	require.Equal(t, int64(5), m.Stat(e).Size)

	require.NoError(t, m.Truncate(e, 0))
	require.Equal(t, int64(0), m.Stat(e).Size)

	err = m.Truncate(e, -1)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

// Truncate-to-zero releases the allocation outright.
func TestTruncateZeroDropsBuffer(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network"})
	e, err := m.Lookup("/network")
	require.NoError(t, err)

	_, err = m.Write(e, 0, []byte("soon gone"))
	require.NoError(t, err)
	require.NotNil(t, e.buffer)

	require.NoError(t, m.Truncate(e, 0))
	require.Nil(t, e.buffer)
	require.Equal(t, int64(0), m.Stat(e).Size)
}

// Truncate never touches the dirty flag; only Write does.
func TestTruncateDoesNotMarkDirty(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network"})
	e, err := m.Lookup("/network")
	require.NoError(t, err)
	require.False(t, e.dirty)

	require.NoError(t, m.Truncate(e, 16))
	require.False(t, e.dirty)
	require.NoError(t, m.Truncate(e, 0))
	require.False(t, e.dirty)
}

// Opening with O_TRUNC and closing without a single write must not commit:
// the truncate alone leaves the entry clean, so release is a no-op and the
// package's store subtree survives intact.
func TestTruncateWithoutWriteDoesNotWipeStore(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network"})
	e, err := m.Lookup("/network")
	require.NoError(t, err)

	payload := []byte("config interface 'lan'\n\toption ifname 'eth0'\n")
	_, err = m.Write(e, 0, payload)
	require.NoError(t, err)
	require.NoError(t, m.Release(e))

	require.NoError(t, m.Truncate(e, 0))
	require.NoError(t, m.Release(e))

	pkg, err := m.translator.Render("network")
	require.NoError(t, err)
	require.Equal(t, "eth0", pkg.Section("lan").Option("ifname").Value)
}

// A dirty buffer is parsed and committed exactly once on release, after
// which the committed content renders back out of the store.
func TestDirtyCommitOnRelease(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network"})
	e, err := m.Lookup("/network")
	require.NoError(t, err)

	payload := []byte("config interface 'lan'\n\toption ifname 'eth0'\n")
	_, err = m.Write(e, 0, payload)
	require.NoError(t, err)

	require.NoError(t, m.Release(e))
	require.False(t, e.dirty)

	pkg, err := m.translator.Render("network")
	require.NoError(t, err)
	require.Equal(t, "eth0", pkg.Section("lan").Option("ifname").Value)
}

// When the parser rejects the buffer, the buffer is retained and dirty
// stays set so a later release retries.
func TestParseFailureKeepsDirtyAndBuffer(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network"})
	e, err := m.Lookup("/network")
	require.NoError(t, err)

	bad := []byte("not a valid uci document\n")
	_, err = m.Write(e, 0, bad)
	require.NoError(t, err)

	err = m.Release(e)
	require.Error(t, err, "ParseAndCommit's error reaches the caller so it can feed a metric")
	require.True(t, e.dirty)
	require.Equal(t, bad, e.buffer)
}

// A dirty buffer is never clobbered by a subsequent populate.
func TestPopulateIsNoOpWhenDirty(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network"})
	e, err := m.Lookup("/network")
	require.NoError(t, err)

	_, err = m.Write(e, 0, []byte("in progress edit"))
	require.NoError(t, err)

	require.NoError(t, m.Populate(e))
	require.Equal(t, []byte("in progress edit"), e.buffer)
}

func TestPathDigestStableAcrossRepopulation(t *testing.T) {
	m := newTestMount(t, StaticSource{"/network"})
	e, err := m.Lookup("/network")
	require.NoError(t, err)
	digest := e.pathDigest

	require.NoError(t, m.Populate(e))
	require.Equal(t, digest, e.pathDigest)
	require.Equal(t, hashString("/network"), e.pathDigest)
}

func TestHashStringDeterministic(t *testing.T) {
	require.Equal(t, hashString("/network"), hashString("/network"))
	require.NotEqual(t, hashString("/network"), hashString("/system"))
}
