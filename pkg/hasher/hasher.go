// Package hasher computes deterministic content digests over skill folders.
//
// A digest covers every regular file below the root: each file's slash
// separated path relative to the root followed by its bytes, fed in sorted
// path order into a sha256 digester. Version-control metadata and the
// dependency manager's package directory are excluded at any depth so their
// churn never marks a skill as changed.
package hasher

import (
	"context"
	_ "crypto/sha256"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// Hasher computes folder digests. The zero value uses the default exclusions.
type Hasher struct {
	excluder *Excluder
}

// Option configures a Hasher
type Option func(*Hasher) error

// WithExcludePatterns adds doublestar patterns, matched against slash
// separated relative paths, on top of the default excluded directories.
func WithExcludePatterns(patterns ...string) Option {
	return func(h *Hasher) error {
		excluder, err := NewExcluder(patterns...)
		if err != nil {
			return err
		}
		h.excluder = excluder
		return nil
	}
}

// New creates a Hasher
func New(opts ...Option) (*Hasher, error) {
	h := &Hasher{excluder: DefaultExcluder()}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Hash computes the digest of root with the default exclusions.
func Hash(ctx context.Context, root string) (string, error) {
	h := &Hasher{excluder: DefaultExcluder()}
	return h.Hash(ctx, root)
}

type fileEntry struct {
	rel  string
	path string
}

// Hash returns the hex encoded sha256 digest of the folder at root.
//
// Any unreadable file or directory fails the whole computation. A missing
// root is reported as an error satisfying errors.Is(err, fs.ErrNotExist).
func (h *Hasher) Hash(ctx context.Context, root string) (string, error) {
	excluder := h.excluder
	if excluder == nil {
		excluder = DefaultExcluder()
	}

	files, err := collectFiles(root, excluder)
	if err != nil {
		return "", err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].rel < files[j].rel
	})

	digester := digest.Canonical.Digester()
	w := digester.Hash()
	// Path then content, no separators. Stored digests depend on this exact
	// encoding, so it must not change.
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := io.WriteString(w, f.rel); err != nil {
			return "", errors.Wrap(err, "failed to hash path")
		}
		if err := copyInto(w, f.path); err != nil {
			return "", err
		}
	}

	return digester.Digest().Encoded(), nil
}

func collectFiles(root string, excluder *Excluder) ([]fileEntry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %s", root)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", root)
	}

	// pnpm style layouts link package directories; walk the real tree.
	root, err = filepath.EvalSymlinks(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", root)
	}

	var files []fileEntry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if excluder.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || excluder.Match(rel, false) {
			return nil
		}

		files = append(files, fileEntry{rel: rel, path: path})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", root)
	}

	return files, nil
}

func copyInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	return nil
}
