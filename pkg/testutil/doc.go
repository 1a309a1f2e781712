// Package testutil provides utilities for testing jin components.
//
// Key components:
//   - TestEnvironment: an isolated workspace, data and config directory with
//     the JIN_ environment pointing at them and a layer repository on disk
//   - Layer helpers: build trees and commit them to any layer store
//   - File helpers: create, read and check workspace files
//
// Pure unit tests should prefer afero's MemMapFs and
// layerstore.NewInMemory; TestEnvironment is for tests that go through
// the OS filesystem, such as lock files and the CLI.
package testutil
