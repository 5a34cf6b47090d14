package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/MimeLyc/batch-sub-translator/pkg/file"
	"github.com/MimeLyc/batch-sub-translator/pkg/log"
)

// State is the persisted form of a run's progress.
type State struct {
	TotalBatches     int   `json:"total_batches"`
	CompletedBatches []int `json:"completed_batches"`
}

// Store is the completion set of one run. All methods are safe for
// concurrent use; every mutation is written to disk before it returns.
type Store struct {
	layout Layout

	mu        sync.Mutex
	total     int
	completed map[int]struct{}
}

// Open loads the state file of layout if present. A non-zero totalBatches
// overrides the persisted total.
func Open(layout Layout, totalBatches int) (*Store, error) {
	s := &Store{
		layout:    layout,
		completed: make(map[int]struct{}),
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	if totalBatches > 0 {
		s.mu.Lock()
		s.total = totalBatches
		s.pruneLocked()
		s.mu.Unlock()
	}
	return s, nil
}

func (s *Store) Layout() Layout {
	return s.layout
}

// Load replaces the in-memory state with the file contents. A missing file
// leaves the store empty; a corrupt one is logged and ignored so that
// artifacts can rebuild it.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.layout.ProgressPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read progress file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		log.Warn("progress file %s is corrupt, ignoring it: %v", s.layout.ProgressPath(), err)
		return nil
	}

	s.total = state.TotalBatches
	s.completed = make(map[int]struct{}, len(state.CompletedBatches))
	for _, n := range state.CompletedBatches {
		if n > 0 {
			s.completed[n] = struct{}{}
		}
	}
	s.pruneLocked()
	log.Info("loaded progress: %d/%d batches completed", len(s.completed), s.total)
	return nil
}

// Save writes the current state.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.snapshotLocked(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := file.WriteAtomic(s.layout.ProgressPath(), data); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// MarkCompleted records batch n as done and persists the change.
func (s *Store) MarkCompleted(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 1 || (s.total > 0 && n > s.total) {
		return fmt.Errorf("batch %d out of range [1,%d]", n, s.total)
	}
	if _, ok := s.completed[n]; ok {
		return nil
	}
	s.completed[n] = struct{}{}
	if err := s.saveLocked(); err != nil {
		delete(s.completed, n)
		return err
	}
	return nil
}

func (s *Store) IsCompleted(n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.completed[n]
	return ok
}

// SetTotal changes the batch count, dropping completions beyond it.
func (s *Store) SetTotal(total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = total
	s.pruneLocked()
	return s.saveLocked()
}

func (s *Store) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// RemainingBatches lists batch numbers in [1,total] not yet completed, in
// ascending order.
func (s *Store) RemainingBatches() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := make([]int, 0, s.total)
	for n := 1; n <= s.total; n++ {
		if _, ok := s.completed[n]; !ok {
			remaining = append(remaining, n)
		}
	}
	return remaining
}

func (s *Store) AllCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total > 0 && len(s.completed) >= s.total
}

// RecoverFromArtifacts marks every batch whose artifact exists as
// completed. When the total is unknown it is inferred from the highest
// batch number found.
func (s *Store) RecoverFromArtifacts() error {
	found, err := s.layout.FindBatchFiles()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.total == 0 {
		for n := range found {
			s.total = max(s.total, n)
		}
	}

	recovered := 0
	for n := range found {
		if n > s.total {
			log.Warn("ignoring batch artifact %s beyond total %d", found[n], s.total)
			continue
		}
		if _, ok := s.completed[n]; !ok {
			s.completed[n] = struct{}{}
			recovered++
		}
	}
	if recovered > 0 {
		log.Info("recovered %d completed batches from artifacts", recovered)
	}
	return s.saveLocked()
}

// Reset forgets all progress and removes the state file and every batch
// artifact of the run.
func (s *Store) Reset() error {
	found, err := s.layout.FindBatchFiles()
	if err != nil {
		return err
	}
	for _, path := range found {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove old batch file %s: %v", path, err)
			continue
		}
		log.Debug("removed old batch file %s", path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = make(map[int]struct{})
	return s.saveLocked()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	completed := make([]int, 0, len(s.completed))
	for n := range s.completed {
		completed = append(completed, n)
	}
	sort.Ints(completed)
	return State{TotalBatches: s.total, CompletedBatches: completed}
}

func (s *Store) pruneLocked() {
	if s.total <= 0 {
		return
	}
	for n := range s.completed {
		if n > s.total {
			delete(s.completed, n)
		}
	}
}

// Inspect returns the state of layout's run as a resumed run would see it,
// counting artifacts on disk as completed. Nothing is written.
func Inspect(layout Layout, totalBatches int) (State, error) {
	s, err := Open(layout, totalBatches)
	if err != nil {
		return State{}, err
	}
	found, err := layout.FindBatchFiles()
	if err != nil {
		return State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total == 0 {
		for n := range found {
			s.total = max(s.total, n)
		}
	}
	for n := range found {
		if n <= s.total {
			s.completed[n] = struct{}{}
		}
	}
	return s.snapshotLocked(), nil
}
