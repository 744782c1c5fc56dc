package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"forgeloop/internal/forgeerr"
	"forgeloop/internal/logging"
)

// Store serializes all access to one PipelineState document behind a
// single mutex (§5: "State writes are totally ordered by the single
// writer"). Reads return a deep copy so phases cannot accidentally
// mutate the live document outside of Mutate/Persist.
type Store struct {
	mu    sync.Mutex
	path  string
	state *PipelineState
}

// Open loads path if it exists, or seeds a fresh PipelineState for runID
// otherwise. A stray ".tmp" file from a crashed write is removed before
// loading — the rename step is atomic, so the ".tmp" file is only ever
// present if a previous persist never completed.
func Open(path, runID string) (*Store, error) {
	tmpPath := path + ".tmp"
	if _, err := os.Stat(tmpPath); err == nil {
		os.Remove(tmpPath)
		logging.State("removed stale temp file from interrupted persist: %s", tmpPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			st := NewPipelineState(runID)
			return &Store{path: path, state: st}, nil
		}
		return nil, forgeerr.Classify(forgeerr.StateCorruption, "delete or restore the state file from backup", fmt.Errorf("read state file: %w", err))
	}

	var st PipelineState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, forgeerr.Classify(forgeerr.StateCorruption, "state file is not valid JSON; restore from backup or reinitialize", fmt.Errorf("parse state file: %w", err))
	}
	normalizeLoaded(&st)

	logging.State("loaded pipeline state version=%d tasks=%d", st.Version, len(st.Tasks))
	return &Store{path: path, state: &st}, nil
}

// normalizeLoaded fills in maps that json.Unmarshal leaves nil when the
// persisted document predates a field, so callers never see a nil map.
func normalizeLoaded(st *PipelineState) {
	if st.Tasks == nil {
		st.Tasks = make(map[string]*Task)
	}
	if st.Files == nil {
		st.Files = make(map[string]*FileState)
	}
	if st.Phases == nil {
		st.Phases = make(map[string]*PhaseState)
	}
	if st.Objectives == nil {
		st.Objectives = make(map[ObjectiveLevel]map[string]*Objective)
	}
	for _, level := range []ObjectiveLevel{ObjectivePrimary, ObjectiveSecondary, ObjectiveTertiary} {
		if st.Objectives[level] == nil {
			st.Objectives[level] = make(map[string]*Objective)
		}
	}
	if st.NoUpdateCounts == nil {
		st.NoUpdateCounts = make(map[string]int)
	}
	if st.PhaseExecutionCounts == nil {
		st.PhaseExecutionCounts = make(map[string]int)
	}
}

// Load returns a deep copy of the current in-memory state. Phases must
// read through Load, not hold a reference across iterations.
func (s *Store) Load() *PipelineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.state)
}

// Mutate applies fn to a private copy of the state and, if fn returns a
// nil error, installs the copy as the new in-memory state and persists it
// to disk. The whole read-modify-persist sequence runs under the store's
// lock, which is what makes state writes totally ordered (§5).
func (s *Store) Mutate(fn func(*PipelineState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := clone(s.state)
	if err := fn(working); err != nil {
		return err
	}
	working.RecomputeCompletion()
	working.Version = s.state.Version + 1
	working.Updated = time.Now().UTC()

	if err := persist(s.path, working); err != nil {
		return err
	}
	s.state = working
	return nil
}

// persist writes state to path atomically (§4.8): serialize, write to a
// temp file in the same directory, rename over the target. A crash
// between those steps leaves the previous target intact.
func persist(path string, state *PipelineState) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp state file: %w", err)
	}

	logging.State("persisted pipeline state version=%d", state.Version)
	logging.Audit().StatePersist(logging.AuditStatePersist, state.Version, true, "")
	return nil
}

// clone deep-copies a PipelineState via JSON round-trip. State documents
// are small (single-run scoped) relative to phase execution cost, so the
// marshal/unmarshal round trip is not a bottleneck; it also guarantees
// the copy has no shared slice/map backing with the original, which a
// field-by-field copy would be easy to get wrong for nested slices.
func clone(st *PipelineState) *PipelineState {
	data, err := json.Marshal(st)
	if err != nil {
		// st was itself produced by a prior successful marshal (on load
		// or on the previous persist), so this can only happen if a
		// caller mutated it with an unmarshalable value in between —
		// a programming error, not a runtime condition to recover from.
		panic(fmt.Sprintf("state: clone of in-memory state failed: %v", err))
	}
	var out PipelineState
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("state: unmarshal of freshly marshaled state failed: %v", err))
	}
	normalizeLoaded(&out)
	return &out
}
