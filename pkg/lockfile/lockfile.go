// Package lockfile persists the skills lock: which skills were installed into
// a project, where they came from, and the content digest they had when last
// installed.
//
// The file is written with sorted keys, two-space indentation and a single
// trailing newline, and carries no timestamps, so that independent additions on
// separate branches merge as disjoint key insertions. Anything that cannot be
// understood, including leftover merge-conflict markers, reads back as an
// empty lock which simply forces a full re-sync.
package lockfile

import (
	"bytes"
	"encoding/json"
	"sort"
)

const (
	// FileName is the lock file name in the project root
	FileName = "skills-lock.json"
	// CurrentVersion is the schema version written by this package. Files with
	// an older version are treated as absent.
	CurrentVersion = 1
)

// SourceTypeNodeModules marks skills discovered inside a node_modules tree
const SourceTypeNodeModules = "node_modules"

// Entry records the provenance of one installed skill
type Entry struct {
	Source       string `json:"source" jsonschema:"description=Origin of the skill such as a package name or repository"`
	SourceType   string `json:"sourceType" jsonschema:"description=Provenance class of the source, e.g. node_modules"`
	ComputedHash string `json:"computedHash" jsonschema:"description=sha256 digest of the skill folder at last install"`
}

// Lock is the persisted lock document
type Lock struct {
	Version int              `json:"version" jsonschema:"minimum=1"`
	Skills  map[string]Entry `json:"skills"`
}

// Empty returns a lock at the current version with no entries.
func Empty() *Lock {
	return &Lock{
		Version: CurrentVersion,
		Skills:  map[string]Entry{},
	}
}

// Names returns the skill names in ascending order.
func (l *Lock) Names() []string {
	names := make([]string, 0, len(l.Skills))
	for name := range l.Skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the entry for name.
func (l *Lock) Get(name string) (Entry, bool) {
	e, ok := l.Skills[name]
	return e, ok
}

// Clone returns a deep copy of the lock.
func (l *Lock) Clone() *Lock {
	c := &Lock{
		Version: l.Version,
		Skills:  make(map[string]Entry, len(l.Skills)),
	}
	for name, e := range l.Skills {
		c.Skills[name] = e
	}
	return c
}

// Set adds or replaces the entry for name.
func (l *Lock) Set(name string, e Entry) {
	if l.Skills == nil {
		l.Skills = map[string]Entry{}
	}
	l.Skills[name] = e
}

// Delete removes name, reporting whether it was present.
func (l *Lock) Delete(name string) bool {
	if _, ok := l.Skills[name]; !ok {
		return false
	}
	delete(l.Skills, name)
	return true
}

type rawLock struct {
	Version *int              `json:"version"`
	Skills  *map[string]Entry `json:"skills"`
}

// Parse decodes lock file content. It never fails: content that is not a
// valid lock at the current version yields Empty().
func Parse(data []byte) *Lock {
	var raw rawLock
	if err := json.Unmarshal(data, &raw); err != nil {
		return Empty()
	}
	if raw.Version == nil || raw.Skills == nil || *raw.Skills == nil {
		return Empty()
	}
	if *raw.Version < CurrentVersion {
		return Empty()
	}

	return &Lock{
		Version: *raw.Version,
		Skills:  *raw.Skills,
	}
}

// Marshal encodes the lock in its canonical on-disk form.
func Marshal(l *Lock) ([]byte, error) {
	skills := l.Skills
	if skills == nil {
		skills = map[string]Entry{}
	}

	// encoding/json writes map keys in sorted order, which keeps the output
	// byte-stable regardless of insertion order.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&Lock{Version: l.Version, Skills: skills}); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
