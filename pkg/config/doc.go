// Package config handles configuration management for jin.
// Configuration is layered with koanf: embedded defaults, the user config
// file, the workspace config file and finally JIN_ environment variables,
// where a double underscore separates nesting levels.
package config
