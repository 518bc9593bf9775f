package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Harshitk-cp/concord/internal/domain"
	"go.uber.org/zap"
)

// File-backed stores keep one pretty-printed JSON document per record.
// Conflicts live flat in their directory; votes are grouped under their
// owning conflict and evolution records under their owning concept with the
// version embedded in the filename, so a directory listing is already
// ordered history. A record that fails to parse at load time is skipped and
// logged; the rest of the collection still loads.

type FileConflictStore struct {
	dir    string
	logger *zap.Logger
}

func NewFileConflictStore(dir string, logger *zap.Logger) (*FileConflictStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conflicts dir: %w", err)
	}
	return &FileConflictStore{dir: dir, logger: logger}, nil
}

func (s *FileConflictStore) Put(ctx context.Context, c *domain.Conflict) error {
	return writeRecord(filepath.Join(s.dir, c.ID+".json"), c)
}

func (s *FileConflictStore) List(ctx context.Context) ([]*domain.Conflict, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var conflicts []*domain.Conflict
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		c := &domain.Conflict{}
		if err := readRecord(path, c); err != nil {
			s.logger.Error("skipping unreadable conflict record", zap.String("path", path), zap.Error(err))
			continue
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, nil
}

type FileVoteStore struct {
	dir    string
	logger *zap.Logger
}

func NewFileVoteStore(dir string, logger *zap.Logger) (*FileVoteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create votes dir: %w", err)
	}
	return &FileVoteStore{dir: dir, logger: logger}, nil
}

func (s *FileVoteStore) Put(ctx context.Context, v *domain.Vote) error {
	conflictDir := filepath.Join(s.dir, v.ConflictID)
	if err := os.MkdirAll(conflictDir, 0o755); err != nil {
		return fmt.Errorf("create vote dir: %w", err)
	}
	// Filename keyed by user and vote id; a replaced vote keeps its id, so
	// resubmission overwrites the same file.
	name := fmt.Sprintf("%s_%s.json", v.UserID, v.ID)
	return writeRecord(filepath.Join(conflictDir, name), v)
}

func (s *FileVoteStore) List(ctx context.Context) ([]*domain.Vote, error) {
	var votes []*domain.Vote
	err := walkJSON(s.dir, func(path string) {
		v := &domain.Vote{}
		if err := readRecord(path, v); err != nil {
			s.logger.Error("skipping unreadable vote record", zap.String("path", path), zap.Error(err))
			return
		}
		votes = append(votes, v)
	})
	if err != nil {
		return nil, err
	}
	return votes, nil
}

type FileEvolutionStore struct {
	dir    string
	logger *zap.Logger
}

func NewFileEvolutionStore(dir string, logger *zap.Logger) (*FileEvolutionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create evolution dir: %w", err)
	}
	return &FileEvolutionStore{dir: dir, logger: logger}, nil
}

func (s *FileEvolutionStore) Put(ctx context.Context, e *domain.EvolutionRecord) error {
	conceptDir := filepath.Join(s.dir, e.ConceptID)
	if err := os.MkdirAll(conceptDir, 0o755); err != nil {
		return fmt.Errorf("create concept dir: %w", err)
	}
	name := fmt.Sprintf("v%d_%s.json", e.Version, e.ID)
	return writeRecord(filepath.Join(conceptDir, name), e)
}

func (s *FileEvolutionStore) List(ctx context.Context) ([]*domain.EvolutionRecord, error) {
	var records []*domain.EvolutionRecord
	err := walkJSON(s.dir, func(path string) {
		e := &domain.EvolutionRecord{}
		if err := readRecord(path, e); err != nil {
			s.logger.Error("skipping unreadable evolution record", zap.String("path", path), zap.Error(err))
			return
		}
		records = append(records, e)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func writeRecord(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func readRecord(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// walkJSON visits every .json file one directory level below root.
func walkJSON(root string, visit func(path string)) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(root, entry.Name())
		files, err := os.ReadDir(sub)
		if err != nil {
			return err
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			visit(filepath.Join(sub, f.Name()))
		}
	}
	return nil
}
