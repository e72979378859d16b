package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openBackends(t *testing.T) map[string]Database {
	t.Helper()
	level, err := NewLevelDB()
	require.NoError(t, err)
	backends := map[string]Database{
		BackendMemory:  NewMemDB(),
		BackendLevelDB: level,
	}
	t.Cleanup(func() {
		for _, db := range backends {
			_ = db.Close()
		}
	})
	return backends
}

func TestDatabasePutGet(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			key := []byte("key-1")
			value := []byte("hello")
			require.NoError(t, db.Put(key, value))

			value[0] = 'j'
			got, err := db.Get(key)
			require.NoError(t, err)
			require.Equal(t, []byte("hello"), got)

			ok, err := db.Has(key)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, 1, db.Len())
		})
	}
}

func TestDatabaseMissingKey(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("absent"))
			require.ErrorIs(t, err, ErrNotFound)

			ok, err := db.Has([]byte("absent"))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestDatabaseOverwriteKeepsCount(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("k"), []byte("v1")))
			require.NoError(t, db.Put([]byte("k"), []byte("v2")))
			require.Equal(t, 1, db.Len())

			got, err := db.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v2"), got)
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("rocksdb")
	require.Error(t, err)

	db, err := Open("")
	require.NoError(t, err)
	require.IsType(t, &MemDB{}, db)
}
