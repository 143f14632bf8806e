package config

import (
	"fmt"

	"github.com/marmos91/incd/pkg/incconfig"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a ServerConfig file",
	Long: `Parse a ServerConfig file and report any errors, plus a few warnings
for settings that are syntactically valid but likely misconfigured.

Examples:
  # Validate a specific file
  incd config validate --server-config /etc/incd/incd.conf`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if serverConfigPath == "" {
		return fmt.Errorf("--server-config is required")
	}

	cfg, err := incconfig.LoadServerConfig(serverConfigPath)
	if err != nil {
		return err
	}

	var warnings []string
	if cfg.ProtocolVersionMin > cfg.ProtocolVersionMax {
		warnings = append(warnings, fmt.Sprintf(
			"protocol_version_min (%d) is greater than protocol_version_max (%d)",
			cfg.ProtocolVersionMin, cfg.ProtocolVersionMax))
	}
	if cfg.ProtocolVersionCurrent < cfg.ProtocolVersionMin || cfg.ProtocolVersionCurrent > cfg.ProtocolVersionMax {
		warnings = append(warnings, fmt.Sprintf(
			"protocol_version_current (%d) falls outside [protocol_version_min, protocol_version_max] (%d-%d)",
			cfg.ProtocolVersionCurrent, cfg.ProtocolVersionMin, cfg.ProtocolVersionMax))
	}
	if cfg.MaxConnectionsPerClient > cfg.MaxConnections {
		warnings = append(warnings, fmt.Sprintf(
			"max_connections_per_client (%d) is greater than max_connections (%d)",
			cfg.MaxConnectionsPerClient, cfg.MaxConnections))
	}
	if cfg.EncryptionRequirement == incconfig.EncryptionRequired && (cfg.CertificatePath == "" || cfg.PrivateKeyPath == "") {
		warnings = append(warnings, "encryption_requirement is Required but certificate_path or private_key_path is unset")
	}

	fmt.Printf("Configuration file: %s\n", serverConfigPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Listen address:    %s\n", cfg.ListenAddress)
	fmt.Printf("  Version policy:    %s\n", cfg.VersionPolicy)
	fmt.Printf("  Encryption:        %s\n", cfg.EncryptionRequirement)

	return nil
}
