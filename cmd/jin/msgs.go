package jin

import (
	_ "embed"
	"strings"
)

// Short messages (one-liners)
const (
	// Command descriptions
	MsgRootShort    = "Layered configuration merge engine"
	MsgApplyShort   = "Merge the active layers into the workspace"
	MsgResolveShort = "Resolve conflicts of a paused apply"
	MsgLayersShort  = "Show the layers of the active context"
	MsgVersionShort = "Print version information"

	// Status messages
	MsgDryRunNotice     = "DRY RUN - no changes were made"
	MsgApplyCompleted   = "Applied %s file(s) from %d layer(s)"
	MsgApplyNothing     = "Nothing to apply: no layer holds any file"
	MsgApplyPaused      = "Apply paused: %s file(s) need resolving"
	MsgApplyPausedHint  = "Edit the .jinmerge files, then run 'jin resolve <path>' or 'jin resolve --all'"
	MsgDowngraded       = "%s could not be parsed in layer %s; merged as text"
	MsgDropped          = "%s was removed by a null value"
	MsgResolveCompleted = "All conflicts resolved; apply completed"
	MsgResolveRemaining = "%s conflict(s) remaining"
	MsgResolveValid     = "%s sidecar(s) are ready to resolve"
	MsgStaleWarning     = "This apply was paused %s; layers may have changed since. Use --force to silence this warning."
	MsgPausedSince      = "An apply paused %s is waiting on %s conflict(s)"
	MsgLastApply        = "Last apply: %s (%s file(s))"
	MsgNoLastApply      = "No apply has completed in this workspace yet"
	MsgStoredLayers     = "%s layer(s) stored in %s"
	MsgFallbackWarning  = "Warning: no .jin directory found; using %s as the workspace (set JIN_WORKSPACE to override)"
	MsgVersionFormat    = "jin version %s\n"
	MsgCommitFormat     = "Commit: %s\n"
	MsgBuiltFormat      = "Built:  %s\n"
	MsgStatusWritten    = "written"
	MsgStatusConflict   = "conflict"
	MsgStatusFailed     = "failed"
	MsgStatusResolved   = "resolved"
	MsgStatusStored     = "yes"
	MsgStatusNotStored  = "no"
	MsgHeaderPath       = "Path"
	MsgHeaderStatus     = "Status"
	MsgHeaderDetail     = "Detail"
	MsgHeaderLayer      = "Layer"
	MsgHeaderRef        = "Ref"
	MsgHeaderStored     = "Stored"

	// Error messages
	MsgErrInitPaths  = "failed to initialize paths: %w"
	MsgErrLoadConfig = "failed to load configuration: %w"
	MsgErrOpenStore  = "failed to open layer repository: %w"
	MsgErrFormat     = "invalid --format: %w"
	MsgErrNoCommand  = "no command specified"

	// Flag descriptions
	MsgFlagVerbose     = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagFormat      = "Output format: auto, term or text"
	MsgFlagMode        = "Active mode (overrides context.mode)"
	MsgFlagScope       = "Active scope (overrides context.scope)"
	MsgFlagProject     = "Active project (overrides context.project)"
	MsgFlagNoUserLocal = "Leave the user local layer out of the merge"
	MsgFlagApplyDryRun = "Merge and report without writing to the workspace"
	MsgFlagAll         = "Resolve every conflicted file"
	MsgFlagForce       = "Silence the warning for a stale paused apply"
	MsgFlagResolveDry  = "Validate the sidecars without writing anything"
)

// Long messages from embedded files
var (
	//go:embed msgs/root-long.txt
	msgRootLongRaw string
	MsgRootLong    = strings.TrimSpace(msgRootLongRaw)

	//go:embed msgs/apply-long.txt
	msgApplyLongRaw string
	MsgApplyLong    = strings.TrimSpace(msgApplyLongRaw)

	//go:embed msgs/apply-example.txt
	msgApplyExampleRaw string
	MsgApplyExample    = strings.TrimRight(msgApplyExampleRaw, "\n")

	//go:embed msgs/resolve-long.txt
	msgResolveLongRaw string
	MsgResolveLong    = strings.TrimSpace(msgResolveLongRaw)

	//go:embed msgs/resolve-example.txt
	msgResolveExampleRaw string
	MsgResolveExample    = strings.TrimRight(msgResolveExampleRaw, "\n")

	//go:embed msgs/layers-long.txt
	msgLayersLongRaw string
	MsgLayersLong    = strings.TrimSpace(msgLayersLongRaw)

	//go:embed msgs/usage-template.txt
	msgUsageTemplateRaw string
	MsgUsageTemplate    = strings.TrimSpace(msgUsageTemplateRaw)
)
