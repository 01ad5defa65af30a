package prefs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadDefaults(t *testing.T) {
	s := openStore(t)
	p := s.Load()
	assert.Equal(t, "Racer", p.Name)
	assert.Equal(t, "beetle", p.AvatarVariant)
	assert.Equal(t, "#00eeff", p.AvatarColor)
}

func TestSaveLoad(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Save(Profile{Name: "Gwen", AvatarVariant: "truck", AvatarColor: "#ff003c"}))
	p := s.Load()
	assert.Equal(t, "Gwen", p.Name)
	assert.Equal(t, "truck", p.AvatarVariant)
	assert.Equal(t, "#ff003c", p.AvatarColor)
}

func TestLoadFillsBlankFields(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Save(Profile{Name: "Gwen"}))
	p := s.Load()
	assert.Equal(t, "Gwen", p.Name)
	assert.Equal(t, "beetle", p.AvatarVariant)
	assert.Equal(t, "#00eeff", p.AvatarColor)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(Profile{Name: "Gale"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "Gale", s.Load().Name)
}
