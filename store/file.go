package store

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/c360/mavrouter/errors"
)

// FileStore keeps settings in one YAML file. Saves go to a temp file in the
// same directory that is renamed over the target, so readers never see a
// partial file.
type FileStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store backed by path. The file need not exist.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default().With("component", "file-store")
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the settings file path.
func (f *FileStore) Path() string { return f.path }

// Load implements Store.
func (f *FileStore) Load(ctx context.Context) (*Settings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadLocked()
}

func (f *FileStore) loadLocked() (*Settings, error) {
	data, err := os.ReadFile(f.path)
	if stderrors.Is(err, os.ErrNotExist) {
		return &Settings{}, nil
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "FileStore", "Load", "read settings")
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.WrapInvalid(err, "FileStore", "Load", "parse settings")
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "FileStore", "Load", "validate settings")
	}
	s.normalize()
	return &s, nil
}

// Save implements Store.
func (f *FileStore) Save(ctx context.Context, s *Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return errors.Wrap(err, "FileStore", "Save", "validate settings")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveLocked(s)
}

func (f *FileStore) saveLocked(s *Settings) error {
	cp := *s
	cp.Links = append([]LinkRecord(nil), s.Links...)
	cp.normalize()

	data, err := yaml.Marshal(&cp)
	if err != nil {
		return errors.WrapInvalid(err, "FileStore", "Save", "encode settings")
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WrapTransient(err, "FileStore", "Save", "create settings directory")
	}
	tmp, err := os.CreateTemp(dir, ".mavrouter-settings-*.yaml")
	if err != nil {
		return errors.WrapTransient(err, "FileStore", "Save", "create temp file")
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WrapTransient(err, "FileStore", "Save", "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.WrapTransient(err, "FileStore", "Save", "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapTransient(err, "FileStore", "Save", "close temp file")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.WrapTransient(err, "FileStore", "Save", "replace settings file")
	}

	f.logger.Debug("Settings saved", "path", f.path, "links", len(cp.Links))
	return nil
}

// DeleteLink implements Store.
func (f *FileStore) DeleteLink(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.loadLocked()
	if err != nil {
		return errors.Wrap(err, "FileStore", "DeleteLink", "load settings")
	}
	if _, ok := s.Link(name); !ok {
		return nil
	}
	return f.saveLocked(s.withoutLink(name))
}
