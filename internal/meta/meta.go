// Package meta holds build metadata shared by the CLI subcommands.
package meta

// Version is the pgfleet release version.
const Version = "v1.0.0"
