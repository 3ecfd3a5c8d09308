// Package datastore is a small JSON file backed key-value store. Values are
// kept as encoded JSON in memory, flushed periodically with an atomic write
// and rotated backups.
package datastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("datastore: closed")
	// ErrTooLarge is returned when a write would exceed MaxSize.
	ErrTooLarge = errors.New("datastore: size limit exceeded")
)

// Config holds the options of a Store.
type Config struct {
	Path             string
	AutoSaveInterval time.Duration // 0 disables periodic saves
	MaxSize          int64         // encoded bytes held in memory, 0 is unlimited
	BackupCount      int
	Logger           zerolog.Logger
}

// DefaultConfig returns the settings used by Open.
func DefaultConfig(path string, logger zerolog.Logger) Config {
	return Config{
		Path:             path,
		AutoSaveInterval: 10 * time.Second,
		MaxSize:          100 << 20,
		BackupCount:      3,
		Logger:           logger,
	}
}

// Store is safe for concurrent use.
type Store struct {
	cfg Config
	log zerolog.Logger

	mu           sync.RWMutex
	data         map[string]json.RawMessage
	size         int64
	lastChecksum string
	closed       bool

	// saveMu serializes writes to disk.
	saveMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open loads the store at cfg.Path, creating an empty file when missing.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("datastore: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("datastore: create directory: %w", err)
	}

	s := &Store{
		cfg:  cfg,
		log:  cfg.Logger.With().Str("component", "datastore").Logger(),
		data: make(map[string]json.RawMessage),
	}

	switch _, err := os.Stat(cfg.Path); {
	case errors.Is(err, os.ErrNotExist):
		if err := writeFileAtomic(cfg.Path, []byte("{}")); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("datastore: stat: %w", err)
	default:
		if err := s.load(); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if cfg.AutoSaveInterval > 0 {
		s.wg.Add(1)
		go s.autoSave(ctx)
	}
	return s, nil
}

// Put encodes v and stores it under key.
func (s *Store) Put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("datastore: encode %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	size := s.size - int64(len(s.data[key])) + int64(len(raw))
	if s.cfg.MaxSize > 0 && size > s.cfg.MaxSize {
		return fmt.Errorf("%w: %q needs %d bytes", ErrTooLarge, key, len(raw))
	}
	s.data[key] = raw
	s.size = size
	return nil
}

// Get decodes the value under key into out. It reports whether key exists.
func (s *Store) Get(key string, out any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.data[key]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return false, ErrClosed
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("datastore: decode %q: %w", key, err)
	}
	return true, nil
}

// Update decodes the value under key into a fresh T, applies fn and stores
// the result, holding the write lock throughout.
func Update[T any](s *Store, key string, fn func(v *T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	var v T
	if raw, ok := s.data[key]; ok {
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("datastore: decode %q: %w", key, err)
		}
	}
	if err := fn(&v); err != nil {
		return err
	}
	raw, err := json.Marshal(&v)
	if err != nil {
		return fmt.Errorf("datastore: encode %q: %w", key, err)
	}
	size := s.size - int64(len(s.data[key])) + int64(len(raw))
	if s.cfg.MaxSize > 0 && size > s.cfg.MaxSize {
		return fmt.Errorf("%w: %q needs %d bytes", ErrTooLarge, key, len(raw))
	}
	s.data[key] = raw
	s.size = size
	return nil
}

// Delete removes key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if raw, ok := s.data[key]; ok {
		s.size -= int64(len(raw))
		delete(s.data, key)
	}
}

// Keys returns the keys starting with prefix, sorted.
func (s *Store) Keys(prefix string) []string {
	s.mu.RLock()
	var out []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	s.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Flush writes the store to disk now.
func (s *Store) Flush() error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return s.save()
}

// Close stops periodic saves and writes the store a last time.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return s.save()
}

func (s *Store) save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	data, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("datastore: encode: %w", err)
	}

	sum := checksum(data)
	if sum == s.lastChecksum {
		return nil
	}
	if s.cfg.BackupCount > 0 {
		if err := s.backup(); err != nil {
			s.log.Warn().Err(err).Msg("failed to back up store")
		}
	}
	if err := writeFileAtomic(s.cfg.Path, data); err != nil {
		return err
	}
	written, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("datastore: verify: %w", err)
	}
	if checksum(written) != sum {
		return errors.New("datastore: verify: checksum mismatch")
	}
	s.lastChecksum = sum
	s.log.Debug().Int("bytes", len(data)).Msg("store saved")
	return nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("datastore: read: %w", err)
	}
	loaded := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("datastore: %s is not a JSON object: %w", s.cfg.Path, err)
	}
	var size int64
	for _, raw := range loaded {
		size += int64(len(raw))
	}
	s.data, s.size = loaded, size
	return nil
}

func (s *Store) autoSave(ctx context.Context) {
	defer s.wg.Done()
	t := time.NewTicker(s.cfg.AutoSaveInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.save(); err != nil {
				s.log.Error().Err(err).Msg("auto-save failed")
			}
		}
	}
}

// backup copies the current file aside and prunes the oldest copies.
func (s *Store) backup() error {
	src, err := os.Open(s.cfg.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer src.Close()

	name := fmt.Sprintf("%s.backup.%s", s.cfg.Path, time.Now().Format("20060102_150405.000000000"))
	dst, err := os.Create(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	backups, err := filepath.Glob(s.cfg.Path + ".backup.*")
	if err != nil || len(backups) <= s.cfg.BackupCount {
		return err
	}
	// timestamped names sort oldest first
	slices.Sort(backups)
	for _, old := range backups[:len(backups)-s.cfg.BackupCount] {
		if err := os.Remove(old); err != nil {
			s.log.Warn().Err(err).Str("file", old).Msg("failed to remove old backup")
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("datastore: create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("datastore: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("datastore: sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("datastore: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("datastore: rename temp file: %w", err)
	}
	return nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
