// Package layers models jin's precedence tiers and resolves, for a given
// mode/scope/project context, the ordered set of layers that feed a merge.
//
// Precedence runs from GlobalBase (lowest) to UserLocal (highest among the
// inputs). WorkspaceActive is the derived output of a merge and never an
// input to one.
package layers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arthur-debert/jin/pkg/errors"
)

// Layer is a precedence tier. Higher values win.
type Layer int

const (
	GlobalBase       Layer = 1
	ModeBase         Layer = 2
	ModeScope        Layer = 3
	ModeScopeProject Layer = 4
	ModeProject      Layer = 5
	ScopeBase        Layer = 6
	ProjectBase      Layer = 7
	UserLocal        Layer = 8
	WorkspaceActive  Layer = 9
)

var layerNames = map[Layer]string{
	GlobalBase:       "GlobalBase",
	ModeBase:         "ModeBase",
	ModeScope:        "ModeScope",
	ModeScopeProject: "ModeScopeProject",
	ModeProject:      "ModeProject",
	ScopeBase:        "ScopeBase",
	ProjectBase:      "ProjectBase",
	UserLocal:        "UserLocal",
	WorkspaceActive:  "WorkspaceActive",
}

func (l Layer) String() string {
	if name, ok := layerNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Layer(%d)", int(l))
}

// Versioned reports whether the layer is stored in the layer repository.
// WorkspaceActive is derived and never stored.
func (l Layer) Versioned() bool {
	return l >= GlobalBase && l <= UserLocal
}

// Mergeable reports whether the layer takes part in the committed fold.
// UserLocal is versioned but applied after the committed layers.
func (l Layer) Mergeable() bool {
	return l >= GlobalBase && l <= ProjectBase
}

// RefPrefix is the git reference namespace under which layer commits live
const RefPrefix = "refs/jin/layers/"

// Ref binds a layer to the identifiers that select it.
type Ref struct {
	Layer   Layer
	Mode    string
	Scope   string
	Project string
}

// Path returns the canonical layer path, used as the layer's label in
// conflict regions, state records and the layer repository.
func (r Ref) Path() string {
	switch r.Layer {
	case GlobalBase:
		return "global"
	case ModeBase:
		return "mode/" + r.Mode
	case ModeScope:
		return "mode/" + r.Mode + "/scope/" + r.Scope
	case ModeScopeProject:
		return "mode/" + r.Mode + "/scope/" + r.Scope + "/project/" + r.Project
	case ModeProject:
		return "mode/" + r.Mode + "/project/" + r.Project
	case ScopeBase:
		return "scope/" + r.Scope
	case ProjectBase:
		return "project/" + r.Project
	case UserLocal:
		return "local"
	case WorkspaceActive:
		return "workspace"
	}
	return r.Layer.String()
}

// RefName returns the git reference holding the layer's tree. Colons are
// legal in identifiers but not in git reference names, so they are escaped.
func (r Ref) RefName() string {
	return RefPrefix + strings.ReplaceAll(r.Path(), ":", "%3A")
}

func (r Ref) String() string {
	return r.Path()
}

// Set is the ordered list of layers for one request, lowest precedence first.
type Set []Ref

// Paths returns the layer paths of the set in precedence order
func (s Set) Paths() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = r.Path()
	}
	return out
}

// Has reports whether the set contains the given tier
func (s Set) Has(l Layer) bool {
	for _, r := range s {
		if r.Layer == l {
			return true
		}
	}
	return false
}

// Request is the active context a merge is computed for.
type Request struct {
	Mode             string
	Scope            string
	Project          string
	IncludeUserLocal bool
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

// ValidateIdentifier checks a mode, scope or project name. Empty names are
// allowed by Resolve (they switch the corresponding layers off) but not here.
func ValidateIdentifier(kind, name string) error {
	if !identifierPattern.MatchString(name) {
		return errors.Newf(errors.ErrInvalidInput,
			"invalid %s name %q: must start with a letter or digit and contain only letters, digits, '.', '_', ':' or '-'", kind, name).
			WithDetail("kind", kind).
			WithDetail("name", name)
	}
	if strings.Contains(name, "..") {
		return errors.Newf(errors.ErrInvalidInput, "invalid %s name %q: must not contain '..'", kind, name).
			WithDetail("kind", kind).
			WithDetail("name", name)
	}
	return nil
}

// Validate checks every non-empty identifier in the request
func (req Request) Validate() error {
	for _, f := range []struct{ kind, name string }{
		{"mode", req.Mode},
		{"scope", req.Scope},
		{"project", req.Project},
	} {
		if f.name == "" {
			continue
		}
		if err := ValidateIdentifier(f.kind, f.name); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the layers that apply to req, lowest precedence first.
// Only structurally valid combinations are included: mode layers need a
// mode, scope layers a scope and project layers a project. A scope without
// a mode contributes only the untethered ScopeBase.
func Resolve(req Request) (Set, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hasMode, hasScope, hasProject := req.Mode != "", req.Scope != "", req.Project != ""

	set := Set{{Layer: GlobalBase}}
	if hasMode {
		set = append(set, Ref{Layer: ModeBase, Mode: req.Mode})
	}
	if hasMode && hasScope {
		set = append(set, Ref{Layer: ModeScope, Mode: req.Mode, Scope: req.Scope})
	}
	if hasMode && hasScope && hasProject {
		set = append(set, Ref{Layer: ModeScopeProject, Mode: req.Mode, Scope: req.Scope, Project: req.Project})
	}
	if hasMode && hasProject {
		set = append(set, Ref{Layer: ModeProject, Mode: req.Mode, Project: req.Project})
	}
	if hasScope {
		set = append(set, Ref{Layer: ScopeBase, Scope: req.Scope})
	}
	if hasProject {
		set = append(set, Ref{Layer: ProjectBase, Project: req.Project})
	}
	if req.IncludeUserLocal {
		set = append(set, Ref{Layer: UserLocal})
	}
	return set, nil
}

// Workspace is the ref describing the materialized output of a merge
func Workspace() Ref {
	return Ref{Layer: WorkspaceActive}
}
