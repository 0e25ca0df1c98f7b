package hasher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func baseTree() map[string]string {
	return map[string]string{
		"SKILL.md":            "---\nname: demo\ndescription: demo skill\n---\n",
		"scripts/run.sh":      "#!/bin/sh\necho hi\n",
		"reference/guide.md":  "# Guide\n",
		"reference/a/deep.md": "deep\n",
	}
}

func hashTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, files)
	h, err := Hash(context.Background(), root)
	require.NoError(t, err)
	return h
}

func TestHash_Deterministic(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, baseTree())

	first, err := Hash(context.Background(), root)
	require.NoError(t, err)
	second, err := Hash(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	// An identical tree in a different location hashes the same.
	assert.Equal(t, first, hashTree(t, baseTree()))
}

func TestHash_Encoding(t *testing.T) {
	got := hashTree(t, map[string]string{
		"b/c.txt": "second",
		"a.txt":   "first",
	})

	// Sorted relative paths, each followed directly by the file bytes.
	want := digest.FromString("a.txt" + "first" + "b/c.txt" + "second").Encoded()
	assert.Equal(t, want, got)
}

func TestHash_Mutations(t *testing.T) {
	original := hashTree(t, baseTree())

	tests := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{
			name: "edit a byte",
			mutate: func(m map[string]string) {
				m["scripts/run.sh"] = "#!/bin/sh\necho ho\n"
			},
		},
		{
			name: "add a file",
			mutate: func(m map[string]string) {
				m["extra.txt"] = ""
			},
		},
		{
			name: "delete a file",
			mutate: func(m map[string]string) {
				delete(m, "reference/guide.md")
			},
		},
		{
			name: "rename preserving content",
			mutate: func(m map[string]string) {
				m["reference/manual.md"] = m["reference/guide.md"]
				delete(m, "reference/guide.md")
			},
		},
		{
			name: "move into another directory",
			mutate: func(m map[string]string) {
				m["reference/b/deep.md"] = m["reference/a/deep.md"]
				delete(m, "reference/a/deep.md")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := baseTree()
			tt.mutate(files)
			assert.NotEqual(t, original, hashTree(t, files))
		})
	}
}

func TestHash_ExcludedDirectories(t *testing.T) {
	original := hashTree(t, baseTree())

	files := baseTree()
	files[".git/HEAD"] = "ref: refs/heads/main\n"
	files["node_modules/dep/index.js"] = "module.exports = 1\n"
	files["reference/.git/config"] = "[core]\n"
	files["reference/a/node_modules/x/package.json"] = "{}\n"

	assert.Equal(t, original, hashTree(t, files))
}

func TestHash_ExcludePatterns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, baseTree())

	h, err := New(WithExcludePatterns("**/*.log", "tmp"))
	require.NoError(t, err)

	before, err := h.Hash(context.Background(), root)
	require.NoError(t, err)

	writeTree(t, root, map[string]string{
		"debug.log":         "noise",
		"reference/x.log":   "noise",
		"tmp/cache/entry":   "noise",
		"reference/tmp.txt": "",
	})

	after, err := h.Hash(context.Background(), root)
	require.NoError(t, err)

	// reference/tmp.txt is not matched by "tmp" and must change the digest.
	assert.NotEqual(t, before, after)
	require.NoError(t, os.Remove(filepath.Join(root, "reference", "tmp.txt")))

	after, err = h.Hash(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestHash_SymlinkedRoot(t *testing.T) {
	base := t.TempDir()
	realDir := filepath.Join(base, "realDir")
	writeTree(t, realDir, baseTree())
	link := filepath.Join(base, "link")
	require.NoError(t, os.Symlink(realDir, link))

	viaLink, err := Hash(context.Background(), link)
	require.NoError(t, err)
	direct, err := Hash(context.Background(), realDir)
	require.NoError(t, err)

	assert.Equal(t, direct, viaLink)
}

func TestHash_Errors(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		_, err := Hash(context.Background(), filepath.Join(t.TempDir(), "missing"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, fs.ErrNotExist))
	})

	t.Run("root is a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		_, err := Hash(context.Background(), path)
		assert.Error(t, err)
	})

	t.Run("unreadable file", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("file permissions are not enforced for root")
		}
		root := t.TempDir()
		writeTree(t, root, baseTree())
		locked := filepath.Join(root, "SKILL.md")
		require.NoError(t, os.Chmod(locked, 0o000))
		t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })

		_, err := Hash(context.Background(), root)
		require.Error(t, err)
		assert.True(t, errors.Is(err, fs.ErrPermission))
	})

	t.Run("cancelled context", func(t *testing.T) {
		root := t.TempDir()
		writeTree(t, root, baseTree())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Hash(ctx, root)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(WithExcludePatterns("[unterminated"))
	assert.Error(t, err)
}
