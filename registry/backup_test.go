package registry

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yllada/swiftrdp/common"
)

func TestArchiver_ExportImportRoundTrip(t *testing.T) {
	s, g := newTestStores(t)
	require.NoError(t, g.Add("ops"))
	require.NoError(t, s.Add(&Profile{Name: "a", Address: "h1", Group: "ops", Note: "multi\nline"}, false))

	a := NewArchiver(s, g)
	out := t.TempDir()
	path, err := a.Export(out, KindBackup)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "swiftrdp-backup.tar.zst"), path)

	// Diverge from the snapshot, then restore it.
	require.NoError(t, s.Add(&Profile{Name: "b", Address: "h2"}, false))
	require.NoError(t, g.Add("dev"))

	replaced, err := a.Import(path)
	require.NoError(t, err)
	assert.Equal(t, []string{common.ConnectionsFileName, common.GroupsFileName}, replaced)

	profiles, err := s.Load()
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "multi\nline", profiles[0].Note)

	groups, err := g.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"ops"}, groups)
}

func TestArchiver_ExportKindName(t *testing.T) {
	s, g := newTestStores(t)
	path, err := NewArchiver(s, g).Export(t.TempDir(), KindExport)
	require.NoError(t, err)
	assert.Equal(t, "swiftrdp-export.tar.zst", filepath.Base(path))
}

func TestArchiver_PartialImportKeepsOtherFile(t *testing.T) {
	s, g := newTestStores(t)
	require.NoError(t, g.Add("keep"))

	var buf bytes.Buffer
	require.NoError(t, writeArchive(&buf, map[string][]byte{
		common.ConnectionsFileName: []byte("x|10.1.1.1|u\n"),
	}))
	archive := filepath.Join(t.TempDir(), "partial.tar.zst")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0600))

	replaced, err := NewArchiver(s, g).Import(archive)
	require.NoError(t, err)
	assert.Equal(t, []string{common.ConnectionsFileName}, replaced)

	groups, err := g.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, groups)

	p, err := s.FindByName("x")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
}

func TestArchiver_ImportRejectsGarbage(t *testing.T) {
	s, g := newTestStores(t)
	archive := filepath.Join(t.TempDir(), "bad.tar.zst")
	require.NoError(t, os.WriteFile(archive, []byte("not an archive"), 0600))

	_, err := NewArchiver(s, g).Import(archive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrInvalidArchive))
}

func TestArchiver_ImportRejectsEmptyArchive(t *testing.T) {
	s, g := newTestStores(t)

	var buf bytes.Buffer
	require.NoError(t, writeArchive(&buf, map[string][]byte{}))
	archive := filepath.Join(t.TempDir(), "empty.tar.zst")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0600))

	_, err := NewArchiver(s, g).Import(archive)
	assert.True(t, errors.Is(err, common.ErrInvalidArchive))
}

func TestArchiver_ImportMissingFile(t *testing.T) {
	s, g := newTestStores(t)
	_, err := NewArchiver(s, g).Import(filepath.Join(t.TempDir(), "nope"))
	assert.True(t, errors.Is(err, common.ErrStorage))
}
