// Package flags holds the command-line flag variables shared across
// commands.
package flags

var (
	// ConfigPath overrides the default settings file location.
	ConfigPath string
	// ListenAddress is where the local control API listens.
	ListenAddress string
)
