package vault

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDisk(t *testing.T, opts ...DiskOption) *Disk {
	t.Helper()
	d, err := NewDisk(t.TempDir(), opts...)
	require.NoError(t, err)
	return d
}

func TestDisk_readWriteExists(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t)

	ok, err := d.Exists(ctx, "a/b/c.json")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Write(ctx, "a/b/c.json", []byte(`{"x":1}`)))
	ok, err = d.Exists(ctx, "a/b/c.json")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := d.Read(ctx, "a/b/c.json")
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, string(data))

	require.NoError(t, d.Write(ctx, "a/b/c.json", []byte(`{}`)))
	data, err = d.Read(ctx, "a/b/c.json")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestDisk_readMissing(t *testing.T) {
	_, err := newTestDisk(t).Read(context.Background(), "nope.md")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestDisk_outsideVault(t *testing.T) {
	d := newTestDisk(t)
	for _, p := range []string{"../x.md", "a/../../x.md", "/etc/passwd"} {
		_, err := d.Read(context.Background(), p)
		assert.ErrorIs(t, err, ErrOutsideVault, p)
	}
}

func TestDisk_listAndRemove(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t)
	require.NoError(t, d.Write(ctx, "dir/one.json", []byte("1")))
	require.NoError(t, d.Write(ctx, "dir/two.json", []byte("2")))
	require.NoError(t, d.Mkdir(ctx, "dir/sub"))

	files, err := d.List(ctx, "dir")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dir/one.json", "dir/two.json"}, files)

	require.NoError(t, d.Remove(ctx, "dir/one.json"))
	require.NoError(t, d.Remove(ctx, "dir/two.json"))
	require.NoError(t, d.Rmdir(ctx, "dir/sub"))
	require.NoError(t, d.Rmdir(ctx, "dir"))
	ok, err := d.Exists(ctx, "dir")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, d.Rmdir(ctx, "."))
}

func TestDisk_stat(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t)
	require.NoError(t, d.Write(ctx, "f.txt", []byte("12345")))
	info, err := d.Stat(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.False(t, info.IsDir)
}

func TestDisk_trash(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t)
	require.NoError(t, d.Write(ctx, "meta/x.json", []byte("first")))
	require.NoError(t, d.Trash(ctx, "meta/x.json"))
	require.NoError(t, d.Write(ctx, "meta/x.json", []byte("second")))
	require.NoError(t, d.Trash(ctx, "meta/x.json"))

	ok, _ := d.Exists(ctx, "meta/x.json")
	assert.False(t, ok)
	first, err := d.Read(ctx, ".trash/meta/x.json")
	require.NoError(t, err)
	assert.Equal(t, "first", string(first))
	trashed, err := d.List(ctx, ".trash/meta")
	require.NoError(t, err)
	assert.Len(t, trashed, 2)

	err = d.Trash(ctx, "meta/missing.json")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestDisk_documents(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t, WithExtensions("md", ".TXT"), WithSkipDirs("data"))
	for _, p := range []string{"a.md", "sub/b.txt", "sub/c.pdf", "data/d.md", ".hidden/e.md", ".trash/f.md"} {
		require.NoError(t, d.Write(ctx, p, []byte("x")))
	}
	docs, err := d.Documents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "sub/b.txt"}, docs)

	assert.True(t, d.IsDocument("x/y.MD"))
	assert.False(t, d.IsDocument("data/y.md"))
	assert.False(t, d.IsDocument("y.pdf"))
}

func TestDisk_readDocument(t *testing.T) {
	ctx := context.Background()
	d := newTestDisk(t)
	require.NoError(t, os.WriteFile(filepath.Join(d.Root(), "note.md"), []byte("# Title\nbody"), 0600))
	text, mtime, err := d.ReadDocument(ctx, "note.md")
	require.NoError(t, err)
	assert.Equal(t, "# Title\nbody", text)
	assert.False(t, mtime.IsZero())

	_, _, err = d.ReadDocument(ctx, "missing.md")
	assert.Error(t, err)
}

func TestDisk_rel(t *testing.T) {
	d := newTestDisk(t)
	rel, err := d.Rel(filepath.Join(d.Root(), "a", "b.md"))
	require.NoError(t, err)
	assert.Equal(t, "a/b.md", rel)
	_, err = d.Rel(filepath.Dir(d.Root()))
	assert.ErrorIs(t, err, ErrOutsideVault)
}
