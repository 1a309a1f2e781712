// Package paths provides centralized path handling for jin.
//
// It locates the workspace (the directory merged layers are materialized
// into), lays out the workspace's .jin control directory and resolves the
// XDG locations of the user configuration and the layer repository.
//
// # Environment Variables
//
//   - JIN_WORKSPACE: workspace root (default: nearest ancestor holding .jin, else cwd)
//   - JIN_DATA_DIR: override the XDG data directory (default: $XDG_DATA_HOME/jin)
//   - JIN_CONFIG_DIR: override the XDG config directory (default: $XDG_CONFIG_HOME/jin)
//
// # Workspace Layout
//
//	<workspace>/.jin/config.toml         workspace configuration
//	<workspace>/.jin/paused-apply.yaml   paused apply record
//	<workspace>/.jin/apply.lock          lock held by apply and resolve
//	<workspace>/.jin/workspace.yaml      record of the last completed apply
package paths
