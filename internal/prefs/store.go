package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Preference keys shared by the settings screen and the backup worker.
const (
	KeyBackupFolderURI   = "backup_folder_uri"
	KeyPassword          = "password"
	KeyStoragePermission = "storage_permission"
)

// Store is the key/value preference store.
type Store interface {
	GetString(key, def string) string
	PutString(key, value string) error
}

// FileStore persists preferences as a flat toml table. It reloads when the
// file changes on disk so a worker process and the TUI can share it.
type FileStore struct {
	mu      sync.Mutex
	path    string
	values  map[string]string
	modTime time.Time
}

// Open loads the store at path; a missing file is an empty store.
func Open(path string) (*FileStore, error) {
	s := &FileStore{path: path, values: map[string]string{}}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) GetString(key, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.reloadIfChanged()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

func (s *FileStore) PutString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.reloadIfChanged()
	s.values[key] = value
	return s.save()
}

// Remove deletes key if present.
func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.reloadIfChanged()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.save()
}

// Clear drops every preference.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = map[string]string{}
	return s.save()
}

// Snapshot returns a copy of all preferences.
func (s *FileStore) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.reloadIfChanged()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Restore merges values into the store in one write.
func (s *FileStore) Restore(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.reloadIfChanged()
	for k, v := range values {
		s.values[k] = v
	}
	return s.save()
}

func (s *FileStore) reloadIfChanged() error {
	fi, err := os.Stat(s.path)
	if err != nil {
		return nil
	}
	if fi.ModTime().Equal(s.modTime) {
		return nil
	}
	return s.reload()
}

func (s *FileStore) reload() error {
	fi, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat prefs: %w", err)
	}
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read prefs: %w", err)
	}
	values := make(map[string]string, len(v.AllKeys()))
	for _, k := range v.AllKeys() {
		values[k] = v.GetString(k)
	}
	s.values = values
	s.modTime = fi.ModTime()
	return nil
}

func (s *FileStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir prefs dir: %w", err)
	}
	v := viper.New()
	v.SetConfigType("toml")
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v.Set(k, s.values[k])
	}
	// unique per writer: the TUI and an external worker may save at once
	f, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+"-*.toml")
	if err != nil {
		return fmt.Errorf("create prefs temp: %w", err)
	}
	tmp := f.Name()
	_ = f.Close()
	if err := v.WriteConfigAs(tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Chmod(tmp, 0o600); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace prefs: %w", err)
	}
	if fi, err := os.Stat(s.path); err == nil {
		s.modTime = fi.ModTime()
	}
	return nil
}

// Memory is an in-memory Store.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemory() *Memory { return &Memory{values: map[string]string{}} }

func (m *Memory) GetString(key, def string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}

func (m *Memory) PutString(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = map[string]string{}
	return nil
}

func (m *Memory) Snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

func (m *Memory) Restore(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}
