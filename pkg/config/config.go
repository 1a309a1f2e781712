package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	jinerrors "github.com/arthur-debert/jin/pkg/errors"
	"github.com/arthur-debert/jin/pkg/layers"
	"github.com/arthur-debert/jin/pkg/logging"
	"github.com/arthur-debert/jin/pkg/paths"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

//go:embed embedded/defaults.toml
var defaultConfig []byte

// EnvPrefix prefixes every environment variable read as configuration
const EnvPrefix = "JIN_"

// Config is jin's resolved configuration
type Config struct {
	Repository Repository `koanf:"repository"`
	Apply      Apply      `koanf:"apply"`
	Context    Context    `koanf:"context"`
	Logging    Logging    `koanf:"logging"`
}

// Repository locates the layer repository
type Repository struct {
	Path string `koanf:"path"`
}

// Apply tunes the apply/resolve workflow
type Apply struct {
	StaleAfter time.Duration `koanf:"stale_after"`
}

// Context is the active mode, scope and project
type Context struct {
	Mode      string `koanf:"mode"`
	Scope     string `koanf:"scope"`
	Project   string `koanf:"project"`
	UserLocal bool   `koanf:"user_local"`
}

// Logging controls log output
type Logging struct {
	File bool `koanf:"file"`
}

// Request returns the layer request described by the active context
func (c *Config) Request() layers.Request {
	return layers.Request{
		Mode:             c.Context.Mode,
		Scope:            c.Context.Scope,
		Project:          c.Context.Project,
		IncludeUserLocal: c.Context.UserLocal,
	}
}

type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("not implemented")
}

// Load resolves the configuration for the workspace described by p
func Load(p paths.Paths) (*Config, error) {
	logger := logging.GetLogger("config")
	k := koanf.New(".")

	// 1. Embedded defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, jinerrors.Wrap(err, jinerrors.ErrConfigParse, "failed to load defaults")
	}

	// 2. Defaults derived from the workspace
	project := DefaultProject(p.WorkspaceRoot())
	if project == "" {
		logger.Debug().Str("workspace", p.WorkspaceRoot()).Msg("Workspace name is not a usable project name, leaving project empty")
	}
	derived := map[string]interface{}{
		"repository.path": p.RepositoryPath(),
		"context.project": project,
	}
	if err := k.Load(confmap.Provider(derived, "."), nil); err != nil {
		return nil, jinerrors.Wrap(err, jinerrors.ErrConfigLoad, "failed to load derived defaults")
	}

	// 3. User and workspace config files
	for _, path := range []string{p.UserConfigPath(), p.WorkspaceConfigPath()} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, jinerrors.Wrapf(err, jinerrors.ErrConfigParse, "failed to load config from %s", path).
				WithDetail("path", path)
		}
		logger.Debug().Str("path", path).Msg("Loaded config file")
	}

	// 4. Environment
	err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil)
	if err != nil {
		return nil, jinerrors.Wrap(err, jinerrors.ErrConfigLoad, "failed to load environment")
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, jinerrors.Wrap(err, jinerrors.ErrConfigParse, "failed to decode configuration")
	}

	// Empty values in files or the environment fall back to the derived ones
	if cfg.Repository.Path == "" {
		cfg.Repository.Path = p.RepositoryPath()
	}
	if cfg.Context.Project == "" {
		cfg.Context.Project = project
	}
	if cfg.Apply.StaleAfter <= 0 {
		return nil, jinerrors.Newf(jinerrors.ErrConfigParse, "apply.stale_after must be positive, got %s", cfg.Apply.StaleAfter)
	}

	logger.Debug().
		Str("repository", cfg.Repository.Path).
		Str("mode", cfg.Context.Mode).
		Str("scope", cfg.Context.Scope).
		Str("project", cfg.Context.Project).
		Msg("Configuration loaded")
	return &cfg, nil
}

var projectUnsafe = regexp.MustCompile(`[^A-Za-z0-9._:-]+`)

// DefaultProject derives a project name from the workspace directory name.
// Characters a layer name cannot hold become '-' and leading punctuation is
// dropped, so ".dotfiles" gives "dotfiles" and "My Config" gives "My-Config".
// It returns "" when nothing usable is left.
func DefaultProject(workspaceRoot string) string {
	name := projectUnsafe.ReplaceAllString(filepath.Base(workspaceRoot), "-")
	name = strings.TrimLeft(name, "._:-")
	if layers.ValidateIdentifier("project", name) != nil {
		return ""
	}
	return name
}

// envKey maps JIN_APPLY__STALE_AFTER to apply.stale_after
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// String renders the configuration for diagnostics
func (c *Config) String() string {
	return fmt.Sprintf("repository=%s stale_after=%s mode=%q scope=%q project=%q user_local=%t",
		c.Repository.Path, c.Apply.StaleAfter, c.Context.Mode, c.Context.Scope, c.Context.Project, c.Context.UserLocal)
}
