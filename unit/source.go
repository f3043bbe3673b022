package unit

import (
	"os"
	"path/filepath"
	"strings"
)

// Source is where a unit's module bytes come from.
type Source struct {
	name string
	path string
	data []byte
}

// Bytes returns a source backed by an in-memory module.
func Bytes(name string, data []byte) Source {
	return Source{name: name, data: data}
}

// File returns a source read from path when the unit is initialized.
func File(path string) Source {
	base := filepath.Base(path)
	return Source{
		name: strings.TrimSuffix(base, filepath.Ext(base)),
		path: path,
	}
}

// Name returns a diagnostic name for the source.
func (s Source) Name() string {
	return s.name
}

// Path returns the file path of a file source, or "".
func (s Source) Path() string {
	return s.path
}

// Load returns the module bytes.
func (s Source) Load() ([]byte, error) {
	if s.path == "" {
		return s.data, nil
	}
	return os.ReadFile(s.path)
}
