package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "skill")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse(t *testing.T) {
	path := writeManifest(t, `---
name: root-skill
description: Does things at the root
---

# Root Skill

Body.
`)

	skill, ok := Parse(path)
	require.True(t, ok)
	assert.Equal(t, "root-skill", skill.Name)
	assert.Equal(t, "Does things at the root", skill.Description)
	assert.Equal(t, filepath.Dir(path), skill.Path)
}

func TestParse_OptionalDescription(t *testing.T) {
	path := writeManifest(t, "---\nname: terse\n---\n")

	skill, ok := Parse(path)
	require.True(t, ok)
	assert.Equal(t, "terse", skill.Name)
	assert.Empty(t, skill.Description)
}

func TestParse_Absent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no frontmatter", "# Just markdown\n"},
		{"missing name", "---\ndescription: nameless\n---\n"},
		{"blank name", "---\nname: \"  \"\n---\n"},
		{"broken yaml", "---\nname: [unclosed\n---\n"},
		{"empty file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skill, ok := Parse(writeManifest(t, tt.content))
			assert.False(t, ok)
			assert.Nil(t, skill)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		skill, ok := Parse(filepath.Join(t.TempDir(), FileName))
		assert.False(t, ok)
		assert.Nil(t, skill)
	})
}

func TestLoad_ReportsReason(t *testing.T) {
	_, err := Load(writeManifest(t, "---\ndescription: x\n---\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}
