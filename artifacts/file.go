package artifacts

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	apperrors "github.com/jrsteele09/campus-auth/internal/errors"
	"github.com/pkg/errors"
)

var _ Store = (*FileStore)(nil)

// FileStore persists artifacts as a JSON object in a single file, the
// equivalent of the browser's local storage for the CLI.
type FileStore struct {
	path string
	lock sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Keys(_ context.Context) ([]string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	values, err := f.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *FileStore) Get(_ context.Context, key string) (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	values, err := f.load()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", apperrors.ErrArtifactNotFound
	}
	return v, nil
}

func (f *FileStore) Set(_ context.Context, key, value string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	values, err := f.load()
	if err != nil {
		return err
	}
	values[key] = value
	return f.save(values)
}

func (f *FileStore) Remove(_ context.Context, key string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	values, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.save(values)
}

func (f *FileStore) load() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return values, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[FileStore.load] read")
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, errors.Wrap(err, "[FileStore.load] decode")
	}
	return values, nil
}

// save replaces the file atomically via a temp file and rename.
func (f *FileStore) save(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return errors.Wrap(err, "[FileStore.save] mkdir")
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[FileStore.save] encode")
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "[FileStore.save] write")
	}
	return errors.Wrap(os.Rename(tmp, f.path), "[FileStore.save] rename")
}
