package state

import (
	"time"

	"github.com/arthur-debert/jin/pkg/errors"
	"github.com/arthur-debert/jin/pkg/filesystem"
	"github.com/arthur-debert/jin/pkg/logging"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const stateFilePerm = 0o644

// Store keeps the paused apply record at a fixed path
type Store struct {
	fs   afero.Fs
	path string
	now  func() time.Time
}

// NewStore creates a store for the record at path
func NewStore(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path, now: time.Now}
}

// Path returns the location of the record
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a paused apply is recorded
func (s *Store) Exists() (bool, error) {
	ok, err := filesystem.Exists(s.fs, s.path)
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrFileAccess, "failed to check %s", s.path).
			WithDetail("path", s.path)
	}
	return ok, nil
}

// Load reads the record. A missing record is ErrStateNotFound; one that
// cannot be decoded or is internally inconsistent is ErrStateCorrupt.
func (s *Store) Load() (*PausedApply, error) {
	ok, err := s.Exists()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New(errors.ErrStateNotFound, "no paused apply to resolve").
			WithDetail("path", s.path)
	}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read %s", s.path).
			WithDetail("path", s.path)
	}

	var st PausedApply
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, errors.Wrapf(err, errors.ErrStateCorrupt, "paused apply record %s is not valid YAML", s.path).
			WithDetail("path", s.path)
	}
	if err := st.validate(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrStateCorrupt, "paused apply record %s is inconsistent", s.path).
			WithDetail("path", s.path)
	}
	return &st, nil
}

func (s *PausedApply) validate() error {
	switch {
	case s.ID == "":
		return errors.New(errors.ErrValidation, "missing id")
	case s.Version < 1:
		return errors.Newf(errors.ErrValidation, "invalid version %d", s.Version)
	case s.ConflictCount != len(s.Conflicts):
		return errors.Newf(errors.ErrValidation, "conflict_count %d does not match %d conflict entries",
			s.ConflictCount, len(s.Conflicts))
	case s.CreatedAt.IsZero():
		return errors.New(errors.ErrValidation, "missing created_at")
	}
	seen := map[string]bool{}
	for _, c := range s.Conflicts {
		if c.Path == "" || seen[c.Path] {
			return errors.Newf(errors.ErrValidation, "invalid or duplicate conflict path %q", c.Path)
		}
		seen[c.Path] = true
	}
	return nil
}

// Save writes st atomically. The version on disk must match st.Version,
// otherwise another invocation changed the record in between and
// ErrStateConflict is returned. On success st.Version is incremented.
func (s *Store) Save(st *PausedApply) error {
	logger := logging.GetLogger("state")

	onDisk := 0
	ok, err := s.Exists()
	if err != nil {
		return err
	}
	if ok {
		current, err := s.Load()
		if err != nil {
			return err
		}
		onDisk = current.Version
	}
	if onDisk != st.Version {
		return errors.Newf(errors.ErrStateConflict,
			"paused apply record changed underneath us (expected version %d, found %d)", st.Version, onDisk).
			WithDetail("path", s.path)
	}

	next := *st
	next.Version = st.Version + 1
	next.ConflictCount = len(next.Conflicts)
	next.UpdatedAt = s.now().UTC()

	data, err := yaml.Marshal(&next)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to encode paused apply record")
	}
	if err := filesystem.AtomicWriteFile(s.fs, s.path, data, stateFilePerm); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", s.path).
			WithDetail("path", s.path)
	}

	*st = next
	logger.Debug().
		Str("id", st.ID).
		Int("version", st.Version).
		Int("conflicts", st.ConflictCount).
		Msg("Saved paused apply record")
	return nil
}

// Delete removes the record. Deleting a missing record is not an error.
func (s *Store) Delete() error {
	if err := filesystem.RemoveIfExists(s.fs, s.path); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to delete %s", s.path).
			WithDetail("path", s.path)
	}
	return nil
}
