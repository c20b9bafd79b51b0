// Package settings keeps the per-minigame settings file: a human editable
// document on disk, optionally seeded from defaults bundled with the binary.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// ErrDefaults marks a failure to read the bundled defaults. The settings file
// itself was loaded.
var ErrDefaults = errors.New("settings: bundled defaults unavailable")

var supportedFormats = map[string]bool{
	"yaml": true,
	"yml":  true,
	"json": true,
	"toml": true,
}

type defaultsSource struct {
	fsys fs.FS
	name string
}

// Store is a settings file backed by an in-memory viper tree.
type Store struct {
	path     string
	format   string
	defaults *defaultsSource

	mutex sync.Mutex
	tree  *viper.Viper
}

// Option configures a Store.
type Option func(*Store)

// WithDefaults seeds the store from name inside fsys on every Load.
// Values in the file take precedence over the defaults.
func WithDefaults(fsys fs.FS, name string) Option {
	return func(s *Store) {
		s.defaults = &defaultsSource{fsys: fsys, name: name}
	}
}

// New creates a store for the file at path and makes sure its directory
// exists. The format follows the file extension and defaults to YAML.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("settings: empty path")
	}
	format := formatOf(path)
	if format == "" {
		format = "yaml"
	}
	if !supportedFormats[format] {
		return nil, fmt.Errorf("settings: unsupported format %q", format)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("settings: create directory for %s: %w", path, err)
	}

	s := &Store{
		path:   path,
		format: format,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tree = s.newTree()
	return s, nil
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the settings file and merges the bundled defaults under it.
//
// A missing file is not an error: the tree then holds only the defaults.
// If the file cannot be read the previous tree is kept and the error is
// returned. If only the defaults fail the file contents are installed and the
// returned error wraps ErrDefaults.
func (s *Store) Load() error {
	fileValues, err := s.readFile()
	if err != nil {
		return err
	}

	var defaultsErr error
	var defaultValues map[string]any
	if s.defaults != nil {
		defaultValues, defaultsErr = s.readDefaults()
	}

	tree := s.newTree()
	if defaultValues != nil {
		if err := tree.MergeConfigMap(defaultValues); err != nil {
			defaultsErr = fmt.Errorf("%w: merge %s: %w", ErrDefaults, s.defaults.name, err)
		}
	}
	if fileValues != nil {
		if err := tree.MergeConfigMap(fileValues); err != nil {
			return fmt.Errorf("settings: merge %s: %w", s.path, err)
		}
	}

	s.mutex.Lock()
	s.tree = tree
	s.mutex.Unlock()

	return defaultsErr
}

// Get returns the in-memory tree. It is empty until Load succeeds.
func (s *Store) Get() *viper.Viper {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.tree
}

// Save writes the in-memory tree back to the settings file.
func (s *Store) Save() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.tree.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("settings: save %s: %w", s.path, err)
	}
	return nil
}

// Int returns the integer at key, or def when unset.
func (s *Store) Int(key string, def int) int {
	tree := s.Get()
	if !tree.IsSet(key) {
		return def
	}
	return tree.GetInt(key)
}

// Duration returns the duration at key, or def when unset.
func (s *Store) Duration(key string, def time.Duration) time.Duration {
	tree := s.Get()
	if !tree.IsSet(key) {
		return def
	}
	return tree.GetDuration(key)
}

// String returns the string at key, or def when unset.
func (s *Store) String(key string, def string) string {
	tree := s.Get()
	if !tree.IsSet(key) {
		return def
	}
	return tree.GetString(key)
}

func (s *Store) newTree() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType(s.format)
	return v
}

func (s *Store) readFile() (map[string]any, error) {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("settings: stat %s: %w", s.path, err)
	}

	v := s.newTree()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("settings: read %s: %w", s.path, err)
	}
	return v.AllSettings(), nil
}

func (s *Store) readDefaults() (map[string]any, error) {
	f, err := s.defaults.fsys.Open(s.defaults.name)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrDefaults, s.defaults.name, err)
	}
	defer f.Close()

	format := formatOf(s.defaults.name)
	if format == "" {
		format = s.format
	}

	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(f); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrDefaults, s.defaults.name, err)
	}
	return v.AllSettings(), nil
}

func formatOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
