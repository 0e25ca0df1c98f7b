// Package manifest parses SKILL.md files into skill records.
package manifest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// FileName is the manifest file identifying a skill folder
const FileName = "SKILL.md"

// Skill is a skill folder described by its manifest
type Skill struct {
	Name        string
	Description string
	// Path is the skill folder, i.e. the directory holding the manifest.
	Path string
}

// Parser turns a manifest path into a skill record. It reports false for
// anything that is not a usable manifest and never returns an error.
type Parser func(path string) (*Skill, bool)

type frontmatter struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

// Parse is the default Parser.
func Parse(path string) (*Skill, bool) {
	skill, err := Load(path)
	if err != nil {
		return nil, false
	}
	return skill, true
}

// Load reads and validates a manifest, returning why it is unusable.
func Load(path string) (*Skill, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read skill file")
	}

	fm, err := parseFrontmatter(content)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(fm.Name)
	if name == "" {
		return nil, errors.New("skill name is required in frontmatter")
	}

	return &Skill{
		Name:        name,
		Description: strings.TrimSpace(fm.Description),
		Path:        filepath.Dir(path),
	}, nil
}

func parseFrontmatter(content []byte) (fm frontmatter, err error) {
	// goldmark-meta panics on some malformed yaml documents
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("failed to parse frontmatter: %v", r)
		}
	}()

	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return fm, errors.Wrap(err, "failed to parse markdown")
	}

	metaData, err := meta.TryGet(pctx)
	if err != nil {
		return fm, errors.Wrap(err, "invalid frontmatter")
	}
	if metaData == nil {
		return fm, errors.New("missing frontmatter")
	}

	config := &mapstructure.DecoderConfig{
		Result:           &fm,
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return fm, errors.Wrap(err, "failed to create frontmatter decoder")
	}
	if err := decoder.Decode(metaData); err != nil {
		return fm, errors.Wrap(err, "failed to decode frontmatter")
	}

	return fm, nil
}
