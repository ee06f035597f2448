// Package recordings decides where captured audio is written.
package recordings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petems/dictator/internal/config"
)

// Store owns the recordings directory.
type Store struct {
	root string
	log  zerolog.Logger
	now  func() time.Time
}

// DefaultRoot is the recordings directory under the app cache.
func DefaultRoot() string {
	return filepath.Join(config.CachePath(), "recordings")
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, log zerolog.Logger) *Store {
	return &Store{root: dir, log: log, now: time.Now}
}

// Root returns the recordings directory.
func (s *Store) Root() string { return s.root }

// NewPath returns a fresh .wav path, creating the directory if needed.
// Names start with the unix time so they sort by capture order; the
// random suffix keeps two recordings in the same second apart.
func (s *Store) NewPath() (string, error) {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return "", fmt.Errorf("create recordings directory: %w", err)
	}
	id := uuid.New().String()[:8]
	name := strconv.FormatInt(s.now().Unix(), 10) + "-" + id + ".wav"
	return filepath.Join(s.root, name), nil
}

// Cleanup is where old recordings would be pruned. No retention policy
// exists yet, so it only logs.
func (s *Store) Cleanup() error {
	s.log.Debug().Str("dir", s.root).Msg("Recording cleanup skipped, no retention policy configured")
	return nil
}

// RunCleanup calls Cleanup once and then on every tick until ctx is done.
func (s *Store) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.Cleanup(); err != nil {
			s.log.Warn().Err(err).Msg("Recording cleanup failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
