// Package jobstore wraps internal/config's file-backed JobsFile with a
// mutex so the scheduler, relay client, and IPC handlers can all read and
// mutate the job list concurrently without racing the YAML file on disk.
package jobstore

import (
	"fmt"
	"sync"

	"github.com/cwt-dev/cwtd/internal/config"
	"github.com/cwt-dev/cwtd/internal/types"
)

// Store is a concurrency-safe handle on jobs.yaml.
type Store struct {
	mu   sync.RWMutex
	path string
	jf   *config.JobsFile
}

// Open loads path (best-effort; see config.Load) and returns a Store.
func Open(path string) *Store {
	return &Store{path: path, jf: config.Load(path)}
}

// Jobs returns a snapshot of the current job list.
func (s *Store) Jobs() []types.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Job, len(s.jf.Jobs))
	copy(out, s.jf.Jobs)
	return out
}

// FindByName returns a copy of the named job.
func (s *Store) FindByName(name string) (types.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j := config.FindByName(s.jf, name)
	if j == nil {
		return types.Job{}, false
	}
	return *j, true
}

// Upsert replaces the job matching Name, or appends it if new, then saves.
func (s *Store) Upsert(job types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jf.Jobs {
		if s.jf.Jobs[i].Name == job.Name {
			s.jf.Jobs[i] = job
			return s.saveLocked()
		}
	}
	s.jf.Jobs = append(s.jf.Jobs, job)
	return s.saveLocked()
}

// SetEnabled flips a job's enabled flag and saves.
func (s *Store) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := config.FindByName(s.jf, name)
	if j == nil {
		return fmt.Errorf("job not found: %s", name)
	}
	j.Enabled = enabled
	return s.saveLocked()
}

// Delete removes the named job and saves.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jf.Jobs {
		if s.jf.Jobs[i].Name == name {
			s.jf.Jobs = append(s.jf.Jobs[:i], s.jf.Jobs[i+1:]...)
			return s.saveLocked()
		}
	}
	return fmt.Errorf("job not found: %s", name)
}

func (s *Store) saveLocked() error {
	return config.Save(s.path, s.jf)
}
