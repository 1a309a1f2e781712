package state

import (
	"os"
	"sort"
	"time"

	"github.com/arthur-debert/jin/pkg/layers"
	"github.com/google/uuid"
)

// LayerConfig is the layer selection an apply was computed from
type LayerConfig struct {
	Mode             string   `yaml:"mode,omitempty"`
	Scope            string   `yaml:"scope,omitempty"`
	Project          string   `yaml:"project,omitempty"`
	IncludeUserLocal bool     `yaml:"include_user_local"`
	Layers           []string `yaml:"layers"`
}

// NewLayerConfig captures req and the set it resolved to
func NewLayerConfig(req layers.Request, set layers.Set) LayerConfig {
	return LayerConfig{
		Mode:             req.Mode,
		Scope:            req.Scope,
		Project:          req.Project,
		IncludeUserLocal: req.IncludeUserLocal,
		Layers:           set.Paths(),
	}
}

// ConflictEntry is a path waiting for resolution and the mode its resolved
// content will be written with
type ConflictEntry struct {
	Path string      `yaml:"path"`
	Mode os.FileMode `yaml:"mode"`
}

// PausedApply is the record of an apply interrupted by conflicts
type PausedApply struct {
	ID            string          `yaml:"id"`
	Version       int             `yaml:"version"`
	Layers        LayerConfig     `yaml:"layer_config"`
	Applied       []string        `yaml:"applied"`
	Conflicts     []ConflictEntry `yaml:"conflicts"`
	ConflictCount int             `yaml:"conflict_count"`
	CreatedAt     time.Time       `yaml:"created_at"`
	UpdatedAt     time.Time       `yaml:"updated_at"`
}

// NewPausedApply creates an unsaved record. Paths are kept sorted.
func NewPausedApply(cfg LayerConfig, applied []string, conflicts []ConflictEntry, now time.Time) *PausedApply {
	s := &PausedApply{
		ID:        uuid.NewString(),
		Layers:    cfg,
		Applied:   append([]string(nil), applied...),
		Conflicts: append([]ConflictEntry(nil), conflicts...),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	sort.Strings(s.Applied)
	sort.Slice(s.Conflicts, func(i, j int) bool { return s.Conflicts[i].Path < s.Conflicts[j].Path })
	s.ConflictCount = len(s.Conflicts)
	return s
}

// Conflict returns the entry for path, if it is conflicted
func (s *PausedApply) Conflict(path string) (ConflictEntry, bool) {
	for _, c := range s.Conflicts {
		if c.Path == path {
			return c, true
		}
	}
	return ConflictEntry{}, false
}

// ConflictPaths returns the conflicted paths in order
func (s *PausedApply) ConflictPaths() []string {
	out := make([]string, len(s.Conflicts))
	for i, c := range s.Conflicts {
		out[i] = c.Path
	}
	return out
}

// MarkResolved moves path from the conflict set to the applied set. It
// reports false when path was not conflicted.
func (s *PausedApply) MarkResolved(path string) bool {
	for i, c := range s.Conflicts {
		if c.Path != path {
			continue
		}
		s.Conflicts = append(s.Conflicts[:i], s.Conflicts[i+1:]...)
		s.ConflictCount = len(s.Conflicts)
		idx := sort.SearchStrings(s.Applied, path)
		if idx == len(s.Applied) || s.Applied[idx] != path {
			s.Applied = append(s.Applied, "")
			copy(s.Applied[idx+1:], s.Applied[idx:])
			s.Applied[idx] = path
		}
		return true
	}
	return false
}

// Done reports whether no conflicts remain
func (s *PausedApply) Done() bool {
	return len(s.Conflicts) == 0
}

// Age is the time since the apply paused
func (s *PausedApply) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Stale reports whether the record is older than after
func (s *PausedApply) Stale(now time.Time, after time.Duration) bool {
	return after > 0 && s.Age(now) > after
}
