package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/Yahir019cx/pool-and-chill-app/internal/log"
)

const (
	// journalVersion is bumped when the file schema changes.
	journalVersion = 1

	journalFileName = "attempts.json"
	appDirName      = "didit-bridge"
)

type journalFile struct {
	Version  int        `json:"version"`
	SavedAt  time.Time  `json:"savedAt"`
	Attempts []*Attempt `json:"attempts"`
}

// Journal persists resolved attempts so history survives a daemon restart.
// The file lives in ~/.local/state/didit-bridge (respecting XDG_STATE_HOME)
// unless a directory is given.
type Journal struct {
	dir    string
	logger zerolog.Logger
}

// NewJournal returns a Journal that reads and writes in dir. The directory
// is created on the first Save.
func NewJournal(dir string) *Journal {
	if dir == "" {
		dir = defaultStateDir()
	}
	return &Journal{dir: dir, logger: log.WithComponent("journal")}
}

func (j *Journal) Path() string {
	return filepath.Join(j.dir, journalFileName)
}

// Load returns the persisted attempts, oldest first. A missing file yields
// no attempts and no error.
func (j *Journal) Load() ([]*Attempt, error) {
	data, err := os.ReadFile(j.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading journal: %w", err)
	}

	var f journalFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing journal: %w", err)
	}
	if f.Version > journalVersion {
		return nil, fmt.Errorf("journal version %d is newer than supported %d", f.Version, journalVersion)
	}
	return f.Attempts, nil
}

// Save writes the resolved attempts in newestFirst using an atomic
// temp-file-then-rename. Pending attempts are skipped.
func (j *Journal) Save(newestFirst []*Attempt) error {
	if err := os.MkdirAll(j.dir, 0o700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	f := journalFile{Version: journalVersion, SavedAt: time.Now().UTC()}
	for i := len(newestFirst) - 1; i >= 0; i-- {
		if a := newestFirst[i]; a != nil && a.IsTerminal() {
			f.Attempts = append(f.Attempts, a)
		}
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling journal: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(j.dir, ".attempts-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, j.Path()); err != nil {
		return fmt.Errorf("renaming journal: %w", err)
	}
	committed = true
	return nil
}

// Persist saves s whenever an attempt resolves, and once more when ctx is
// done. Saves run on this goroutine so the bridge never waits on disk.
func (j *Journal) Persist(ctx context.Context, s *Store) error {
	dirty := make(chan struct{}, 1)
	remove := s.OnChange(func(ev Event) {
		if ev.Attempt == nil || !ev.Attempt.IsTerminal() {
			return
		}
		select {
		case dirty <- struct{}{}:
		default:
		}
	})
	defer remove()

	for {
		select {
		case <-ctx.Done():
			return j.Save(s.GetAll())
		case <-dirty:
			if err := j.Save(s.GetAll()); err != nil {
				j.logger.Warn().Err(err).Str("path", j.Path()).Msg("journal save failed")
			}
		}
	}
}

// defaultStateDir returns ~/.local/state/didit-bridge, respecting
// XDG_STATE_HOME if set.
func defaultStateDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
