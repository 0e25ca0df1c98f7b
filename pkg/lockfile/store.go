package lockfile

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"github.com/jingkaihe/skillsync/pkg/logger"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
)

// Store reads and writes the lock file of a single project.
//
// Every access goes through an advisory file lock, but a Store does not make
// concurrent sync processes on the same project safe: callers running several
// syncs at once must serialise them.
type Store struct {
	path string
}

// NewStore returns a store for the lock file in projectDir
func NewStore(projectDir string) *Store {
	return &Store{path: filepath.Join(projectDir, FileName)}
}

// NewStoreAt returns a store for an explicit lock file path
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

// Path returns the lock file path
func (s *Store) Path() string {
	return s.path
}

// Read loads the lock file. It never fails; a missing, unreadable or invalid
// file yields Empty().
func (s *Store) Read(ctx context.Context) *Lock {
	data, err := s.ReadRaw()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.G(ctx).WithError(err).WithField("path", s.path).Warn("failed to read lock file, treating as empty")
		}
		return Empty()
	}
	return Parse(data)
}

// ReadRaw returns the lock file bytes as stored on disk.
func (s *Store) ReadRaw() ([]byte, error) {
	return lockedfile.Read(s.path)
}

// Write persists the whole lock.
func (s *Store) Write(ctx context.Context, l *Lock) error {
	data, err := Marshal(l)
	if err != nil {
		return errors.Wrap(err, "failed to marshal lock file")
	}

	if err := lockedfile.Write(s.path, bytes.NewReader(data), 0o644); err != nil {
		return errors.Wrap(err, "failed to write lock file")
	}

	logger.G(ctx).WithField("path", s.path).WithField("skills", len(l.Skills)).Debug("wrote lock file")
	return nil
}

// AddEntry records or replaces one skill entry with a read-modify-write of
// the whole file.
func (s *Store) AddEntry(ctx context.Context, name string, e Entry) error {
	err := s.transform(func(l *Lock) bool {
		l.Set(name, e)
		return true
	})
	if err != nil {
		return errors.Wrapf(err, "failed to record skill %s", name)
	}

	logger.G(ctx).WithField("skill", name).WithField("source", e.Source).Debug("recorded lock entry")
	return nil
}

// RemoveEntry deletes one skill entry, reporting whether it existed. The file
// is left untouched when the entry is absent.
func (s *Store) RemoveEntry(ctx context.Context, name string) (bool, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	removed := false
	err := s.transform(func(l *Lock) bool {
		removed = l.Delete(name)
		return removed
	})
	if err != nil {
		return false, errors.Wrapf(err, "failed to remove skill %s", name)
	}

	if removed {
		logger.G(ctx).WithField("skill", name).Debug("removed lock entry")
	}
	return removed, nil
}

// transform holds the file lock across the read and the write. mutate
// reports whether the lock changed; unchanged content is written back as is.
func (s *Store) transform(mutate func(*Lock) bool) error {
	return lockedfile.Transform(s.path, func(data []byte) ([]byte, error) {
		l := Parse(data)
		if !mutate(l) {
			return data, nil
		}
		return Marshal(l)
	})
}

// Schema returns the JSON schema describing the lock file.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := r.Reflect(&Lock{})
	schema.Title = FileName

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal lock file schema")
	}
	return append(data, '\n'), nil
}
