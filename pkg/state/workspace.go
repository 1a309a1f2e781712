package state

import (
	"sort"
	"time"

	"github.com/arthur-debert/jin/pkg/errors"
	"github.com/arthur-debert/jin/pkg/filesystem"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// WorkspaceRecord describes the workspace layer: what the last completed
// apply materialized and from which layers.
type WorkspaceRecord struct {
	Layers    LayerConfig `yaml:"layer_config"`
	Files     []string    `yaml:"files"`
	AppliedAt time.Time   `yaml:"applied_at"`
}

// WriteWorkspaceRecord atomically replaces the record at path
func WriteWorkspaceRecord(fs afero.Fs, path string, rec WorkspaceRecord) error {
	rec.Files = append([]string(nil), rec.Files...)
	sort.Strings(rec.Files)
	rec.AppliedAt = rec.AppliedAt.UTC()

	data, err := yaml.Marshal(&rec)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to encode workspace record")
	}
	if err := filesystem.AtomicWriteFile(fs, path, data, stateFilePerm); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", path).
			WithDetail("path", path)
	}
	return nil
}

// ReadWorkspaceRecord loads the record at path. ok is false when no apply
// has completed yet.
func ReadWorkspaceRecord(fs afero.Fs, path string) (rec WorkspaceRecord, ok bool, err error) {
	exists, err := filesystem.Exists(fs, path)
	if err != nil {
		return rec, false, errors.Wrapf(err, errors.ErrFileAccess, "failed to check %s", path)
	}
	if !exists {
		return rec, false, nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return rec, false, errors.Wrapf(err, errors.ErrFileAccess, "failed to read %s", path)
	}
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return rec, false, errors.Wrapf(err, errors.ErrStateCorrupt, "workspace record %s is not valid YAML", path).
			WithDetail("path", path)
	}
	return rec, true, nil
}
