// Package config implements incd's configuration subcommands.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd is the config subcommand.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect INC server configuration",
	Long: `Inspect the incd ServerConfig file: the protocol's own §6 key=value
record of listen address, version/encryption policy, and resource caps.

Subcommands:
  dump      Print every effective option
  validate  Parse the file and report errors`,
}

var serverConfigPath string

func init() {
	Cmd.PersistentFlags().StringVar(&serverConfigPath, "server-config", "", "path to the INC ServerConfig file (default: built-in defaults)")
	Cmd.AddCommand(dumpCmd)
	Cmd.AddCommand(validateCmd)
}
