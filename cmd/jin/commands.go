package jin

import (
	"fmt"
	"os"

	"github.com/arthur-debert/jin/internal/version"
	"github.com/arthur-debert/jin/pkg/apply"
	"github.com/arthur-debert/jin/pkg/config"
	"github.com/arthur-debert/jin/pkg/errors"
	"github.com/arthur-debert/jin/pkg/filesystem"
	"github.com/arthur-debert/jin/pkg/layers"
	"github.com/arthur-debert/jin/pkg/layerstore"
	"github.com/arthur-debert/jin/pkg/logging"
	"github.com/arthur-debert/jin/pkg/output"
	"github.com/arthur-debert/jin/pkg/paths"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	verbosity   int
	format      string
	mode        string
	scope       string
	project     string
	noUserLocal bool
}

// session holds what a command needs once flags are parsed
type session struct {
	paths   paths.Paths
	config  *config.Config
	store   *layerstore.GitStore
	ctrl    *apply.Controller
	printer *output.Printer
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	initTemplateFormatting()

	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "jin",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(opts.verbosity, false)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf(MsgErrNoCommand)
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}

	// Global flags
	rootCmd.PersistentFlags().CountVarP(&opts.verbosity, "verbose", "v", MsgFlagVerbose)
	rootCmd.PersistentFlags().StringVar(&opts.format, "format", "auto", MsgFlagFormat)
	rootCmd.PersistentFlags().StringVar(&opts.mode, "mode", "", MsgFlagMode)
	rootCmd.PersistentFlags().StringVar(&opts.scope, "scope", "", MsgFlagScope)
	rootCmd.PersistentFlags().StringVar(&opts.project, "project", "", MsgFlagProject)
	rootCmd.PersistentFlags().BoolVar(&opts.noUserLocal, "no-user-local", false, MsgFlagNoUserLocal)

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddGroup(&cobra.Group{
		ID:    "core",
		Title: "COMMANDS:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "misc",
		Title: "MISC:",
	})
	rootCmd.SetUsageTemplate(MsgUsageTemplate)

	rootCmd.AddCommand(newApplyCmd(opts))
	rootCmd.AddCommand(newResolveCmd(opts))
	rootCmd.AddCommand(newLayersCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newSession locates the workspace, loads the configuration with the
// command line overrides and opens the layer repository
func newSession(cmd *cobra.Command, opts *globalOptions) (*session, error) {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return nil, fmt.Errorf(MsgErrFormat, err)
	}
	printer := output.NewPrinter(cmd.OutOrStdout(), format)

	p, err := paths.New("")
	if err != nil {
		return nil, fmt.Errorf(MsgErrInitPaths, err)
	}
	if p.UsedFallback() {
		output.NewPrinter(cmd.ErrOrStderr(), format).Warn(MsgFallbackWarning, p.WorkspaceRoot())
	}

	cfg, err := config.Load(p)
	if err != nil {
		return nil, fmt.Errorf(MsgErrLoadConfig, err)
	}
	if cfg.Logging.File {
		logging.SetupLogger(opts.verbosity, true)
	}

	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Context.Mode = opts.mode
	}
	if flags.Changed("scope") {
		cfg.Context.Scope = opts.scope
	}
	if flags.Changed("project") {
		cfg.Context.Project = opts.project
	}
	if opts.noUserLocal {
		cfg.Context.UserLocal = false
	}

	store, err := layerstore.Open(cfg.Repository.Path)
	if err != nil {
		return nil, fmt.Errorf(MsgErrOpenStore, err)
	}

	// Resolve targets fall back to the workspace root when this fails
	cwd, _ := os.Getwd()

	log.Info().
		Str("workspace", p.WorkspaceRoot()).
		Str("repository", cfg.Repository.Path).
		Str("context", cfg.String()).
		Msg("Session ready")

	return &session{
		paths:  p,
		config: cfg,
		store:  store,
		ctrl: apply.New(apply.Options{
			Fs:         filesystem.NewOS(),
			Paths:      p,
			Reader:     store,
			StaleAfter: cfg.Apply.StaleAfter,
			WorkDir:    cwd,
		}),
		printer: printer,
	}, nil
}

func newApplyCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:     "apply",
		Short:   MsgApplyShort,
		Long:    MsgApplyLong,
		Example: MsgApplyExample,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}

			result, err := s.ctrl.Apply(cmd.Context(), s.config.Request(), apply.ApplyOptions{DryRun: dryRun})
			if result == nil {
				return err
			}
			if renderErr := renderApply(s.printer, result); renderErr != nil {
				return renderErr
			}
			if err != nil {
				return err
			}
			if result.Paused {
				return errors.Newf(errors.ErrConflictUnresolved, "%d file(s) are waiting for 'jin resolve'", len(result.Conflicts))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, MsgFlagApplyDryRun)
	return cmd
}

func newResolveCmd(opts *globalOptions) *cobra.Command {
	var resolveOpts apply.ResolveOptions

	cmd := &cobra.Command{
		Use:     "resolve [paths...]",
		Short:   MsgResolveShort,
		Long:    MsgResolveLong,
		Example: MsgResolveExample,
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}

			result, err := s.ctrl.Resolve(cmd.Context(), args, resolveOpts)
			if result == nil {
				return err
			}
			if renderErr := renderResolve(s.printer, result); renderErr != nil {
				return renderErr
			}
			if err != nil {
				return err
			}
			if !result.DryRun && len(result.Remaining) > 0 {
				return errors.Newf(errors.ErrConflictUnresolved, "%d conflict(s) remaining", len(result.Remaining))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&resolveOpts.All, "all", false, MsgFlagAll)
	cmd.Flags().BoolVar(&resolveOpts.Force, "force", false, MsgFlagForce)
	cmd.Flags().BoolVar(&resolveOpts.DryRun, "dry-run", false, MsgFlagResolveDry)
	return cmd
}

func newLayersCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "layers",
		Short:   MsgLayersShort,
		Long:    MsgLayersLong,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}

			set, err := layers.Resolve(s.config.Request())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			stored := make([]bool, len(set))
			for i, ref := range set {
				if stored[i], err = s.store.Exists(ctx, ref); err != nil {
					return err
				}
			}
			all, err := s.store.StoredLayers(ctx)
			if err != nil {
				return err
			}

			return renderLayers(s, set, stored, len(all))
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   MsgVersionShort,
		GroupID: "misc",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, MsgVersionFormat, version.Version)
			_, _ = fmt.Fprintf(out, MsgCommitFormat, version.Commit)
			_, _ = fmt.Fprintf(out, MsgBuiltFormat, version.Date)
		},
	}
}
