// Package store keeps timestamped ROM and save dumps on disk, one folder
// per cartridge identifier.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/cespare/xxhash"

	"github.com/thelolagemann/cartreader/pkg/utils"
)

var (
	// ErrNotFound is returned when no dump matches.
	ErrNotFound = errors.New("store: no dump found")
	// ErrCorrupt is returned when a dump no longer matches its digest.
	ErrCorrupt = errors.New("store: digest mismatch")
)

const (
	compressedExt = ".br"
	digestExt     = ".xxh"
)

// file naming convention:
// <dir>/<identifier>/<unix timestamp>.<ext>[.br]
// with the digest of the uncompressed data in <file>.xxh

// Store is a dump folder.
type Store struct {
	dir      string
	compress bool
	now      func() time.Time
}

// Opt configures a Store.
type Opt func(s *Store)

// Compressed brotli compresses every dump written.
func Compressed() Opt {
	return func(s *Store) {
		s.compress = true
	}
}

// WithClock replaces the clock used to name dumps.
func WithClock(now func() time.Time) Opt {
	return func(s *Store) {
		s.now = now
	}
}

// New opens the store at dir, creating it if it doesn't exist.
func New(dir string, opts ...Opt) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	s := &Store{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Put writes data as a new dump of identifier and returns its path. The
// dump is written to a temporary file first and renamed into place, so a
// crash never leaves a partial dump behind.
func (s *Store) Put(identifier, ext string, data []byte) (string, error) {
	folder := filepath.Join(s.dir, sanitize(identifier))
	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", fmt.Errorf("store: %w", err)
	}

	path := s.name(folder, ext)
	if err := writeAtomic(path, func(f *os.File) error {
		if !s.compress {
			_, err := f.Write(data)
			return err
		}
		w := brotli.NewWriter(f)
		if _, err := w.Write(data); err != nil {
			return err
		}
		return w.Close()
	}); err != nil {
		return "", fmt.Errorf("store: writing %s: %w", path, err)
	}

	digest := strconv.FormatUint(xxhash.Sum64(data), 16)
	if err := writeAtomic(path+digestExt, func(f *os.File) error {
		_, err := f.WriteString(digest + "\n")
		return err
	}); err != nil {
		return "", fmt.Errorf("store: writing digest: %w", err)
	}
	return path, nil
}

// name picks an unused timestamped file name in folder.
func (s *Store) name(folder, ext string) string {
	suffix := "." + strings.TrimPrefix(ext, ".")
	if s.compress {
		suffix += compressedExt
	}
	for ts := s.now().Unix(); ; ts++ {
		path := filepath.Join(folder, strconv.FormatInt(ts, 10)+suffix)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path
		}
	}
}

func writeAtomic(path string, fill func(f *os.File) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), path)
}

// List returns the dumps of identifier with the given extension,
// compressed or not, newest first.
func (s *Store) List(identifier, ext string) ([]string, error) {
	folder := filepath.Join(s.dir, sanitize(identifier))
	files, err := os.ReadDir(folder)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	type dump struct {
		name string
		ts   int64
	}
	ext = "." + strings.TrimPrefix(ext, ".")
	var dumps []dump
	for _, file := range files {
		name := strings.TrimSuffix(file.Name(), compressedExt)
		if file.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		if ts, ok := parseTimestamp(strings.TrimSuffix(name, ext)); ok {
			dumps = append(dumps, dump{file.Name(), ts})
		}
	}
	sort.Slice(dumps, func(i, j int) bool {
		return dumps[i].ts > dumps[j].ts
	})

	paths := make([]string, len(dumps))
	for i, d := range dumps {
		paths[i] = filepath.Join(folder, d.name)
	}
	return paths, nil
}

// Latest returns the path of the newest dump of identifier with the given
// extension.
func (s *Store) Latest(identifier, ext string) (string, error) {
	paths, err := s.List(identifier, ext)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", ErrNotFound
	}
	return paths[0], nil
}

// Load reads a dump, decompressing it if needed, and checks it against its
// digest when one was written.
func (s *Store) Load(path string) ([]byte, error) {
	data, err := utils.LoadFile(path)
	if err != nil {
		return nil, err
	}

	want, err := os.ReadFile(path + digestExt)
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	} else if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if got := strconv.FormatUint(xxhash.Sum64(data), 16); got != strings.TrimSpace(string(want)) {
		return nil, fmt.Errorf("%s: %w", path, ErrCorrupt)
	}
	return data, nil
}

// parseTimestamp parses the unix timestamp a dump is named by.
func parseTimestamp(name string) (int64, bool) {
	n, err := strconv.ParseInt(name, 10, 64)
	return n, err == nil
}

// sanitize makes identifier usable as a folder name.
func sanitize(identifier string) string {
	identifier = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r < 0x20:
			return '_'
		}
		return r
	}, strings.TrimSpace(identifier))
	if identifier == "" || identifier == "." || identifier == ".." {
		return "unknown"
	}
	return identifier
}
