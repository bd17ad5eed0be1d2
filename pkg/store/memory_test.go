package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemorySetWalkDelete(t *testing.T) {
	m := NewMemory()

	txn, err := m.Open("system:/config")
	require.NoError(t, err)
	txn.Set("system:/config/network", "", map[string]string{"kind": "package"})
	txn.Set("system:/config/network/lan", "", map[string]string{"type": "interface"})
	require.NoError(t, txn.Commit())

	entries, err := m.Walk("system:/config/network")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	txn2, err := m.Open("system:/config")
	require.NoError(t, err)
	txn2.Delete("system:/config/network", true)
	require.NoError(t, txn2.Commit())

	entries, err = m.Walk("system:/config/network")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestMemoryWalkIsScopedToPrefix(t *testing.T) {
	m := NewMemory()
	txn, _ := m.Open("system:/config")
	txn.Set("system:/config/network", "", nil)
	txn.Set("system:/config/networking-extra", "", nil)
	require.NoError(t, txn.Commit())

	entries, err := m.Walk("system:/config/network")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "system:/config/network", entries[0].Key)
}
