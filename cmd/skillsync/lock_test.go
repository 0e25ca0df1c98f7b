package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jingkaihe/skillsync/pkg/lockfile"
	"github.com/jingkaihe/skillsync/pkg/presenter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func seededStore(t *testing.T) *lockfile.Store {
	t.Helper()
	store := lockfile.NewStore(t.TempDir())
	lock := lockfile.Empty()
	lock.Set("root-skill", lockfile.Entry{Source: "my-skill-pkg", SourceType: lockfile.SourceTypeNodeModules, ComputedHash: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"})
	lock.Set("acme", lockfile.Entry{Source: "@acme/tools", SourceType: lockfile.SourceTypeNodeModules, ComputedHash: "bbbb"})
	require.NoError(t, store.Write(context.Background(), lock))
	return store
}

func TestListLock(t *testing.T) {
	store := seededStore(t)

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, listLock(context.Background(), &buf, store, outputTable))
		out := buf.String()
		assert.Contains(t, out, "NAME")
		assert.Contains(t, out, "@acme/tools")
		assert.Contains(t, out, "aaaaaaaaaaaa...")
		assert.Less(t, bytes.Index(buf.Bytes(), []byte("acme")), bytes.Index(buf.Bytes(), []byte("root-skill")))
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, listLock(context.Background(), &buf, store, outputJSON))
		var entries []lockedSkill
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entries))
		require.Len(t, entries, 2)
		assert.Equal(t, "acme", entries[0].Name)
		assert.Equal(t, "my-skill-pkg", entries[1].Source)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, listLock(context.Background(), &buf, store, outputYAML))
		var entries []lockedSkill
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &entries))
		require.Len(t, entries, 2)
		assert.Equal(t, "root-skill", entries[1].Name)
		assert.Equal(t, lockfile.SourceTypeNodeModules, entries[1].SourceType)
	})
}

func TestRemoveLockEntries(t *testing.T) {
	store := seededStore(t)
	var out bytes.Buffer
	p := presenter.NewWithOptions(&out, &out, presenter.ColorNever)

	require.NoError(t, removeLockEntries(context.Background(), p, store, []string{"acme"}))
	assert.Contains(t, out.String(), "Removed 'acme'")
	assert.Equal(t, []string{"root-skill"}, store.Read(context.Background()).Names())

	err := removeLockEntries(context.Background(), p, store, []string{"root-skill", "ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
	assert.Empty(t, store.Read(context.Background()).Names())
}

func TestRemoveLockEntries_NoLockFile(t *testing.T) {
	dir := t.TempDir()
	store := lockfile.NewStore(dir)
	p := presenter.NewWithOptions(&bytes.Buffer{}, &bytes.Buffer{}, presenter.ColorNever)

	err := removeLockEntries(context.Background(), p, store, []string{"anything"})
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, lockfile.FileName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestValidateOutput(t *testing.T) {
	for _, f := range []string{outputTable, outputJSON, outputYAML} {
		assert.NoError(t, validateOutput(f))
	}
	assert.Error(t, validateOutput("xml"))
}

func TestLockStore(t *testing.T) {
	project := t.TempDir()

	store, err := lockStore(project, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(project, lockfile.FileName), store.Path())

	store, err = lockStore(project, filepath.Join("config", "skills.lock.json"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(project, "config", "skills.lock.json"), store.Path())

	elsewhere := filepath.Join(t.TempDir(), "other-lock.json")
	store, err = lockStore(project, elsewhere)
	require.NoError(t, err)
	assert.Equal(t, elsewhere, store.Path())

	lock := lockfile.Empty()
	lock.Set("acme", lockfile.Entry{Source: "@acme/tools", SourceType: lockfile.SourceTypeNodeModules, ComputedHash: "cccc"})
	require.NoError(t, store.Write(context.Background(), lock))

	var buf bytes.Buffer
	require.NoError(t, listLock(context.Background(), &buf, store, outputJSON))
	assert.Contains(t, buf.String(), "@acme/tools")
	_, err = os.Stat(filepath.Join(project, lockfile.FileName))
	assert.True(t, os.IsNotExist(err))
}
