package database

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := New(Config{Path: path, Profile: ProfileStandard, Name: "test"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "test", db.Name())
	assert.NoError(t, db.Conn().Ping())
}

func TestNewInMemoryDatabase(t *testing.T) {
	db, err := New(Config{
		Path:    "file:dbtest?mode=memory&cache=shared",
		Profile: ProfileCache,
		Name:    "memory",
	})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Conn().Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY)`)
	assert.NoError(t, err)
}

func TestBuildConnectionStringProfiles(t *testing.T) {
	std := buildConnectionString("/tmp/x.db", ProfileStandard)
	assert.Contains(t, std, "journal_mode(WAL)")
	assert.Contains(t, std, "synchronous(NORMAL)")

	cache := buildConnectionString("/tmp/y.db", ProfileCache)
	assert.Contains(t, cache, "synchronous(OFF)")

	// URIs with existing query parameters must not get a second "?".
	uri := buildConnectionString("file:z?mode=memory", ProfileCache)
	assert.Equal(t, 1, strings.Count(uri, "?"))
}
