package config

import (
	"fmt"

	"github.com/marmos91/incd/pkg/incconfig"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every effective ServerConfig option",
	Long: `Print every effective ServerConfig option, in the same field order and
label text as the original implementation's dump(), for debugging.

Examples:
  # Dump the built-in defaults
  incd config dump

  # Dump a specific ServerConfig file
  incd config dump --server-config /etc/incd/incd.conf`,
	RunE: runConfigDump,
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg := incconfig.DefaultServerConfig()
	if serverConfigPath != "" {
		var err error
		cfg, err = incconfig.LoadServerConfig(serverConfigPath)
		if err != nil {
			return err
		}
	}

	fmt.Print(cfg.Dump())
	return nil
}
