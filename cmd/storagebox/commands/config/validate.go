package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/storagebox/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the storagebox configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  storagebox config validate

  # Validate specific config file
  storagebox config validate --config /etc/storagebox/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)

	cfg, err := config.MustLoad(path)
	if err != nil {
		return err
	}
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	var warnings []string
	if len(cfg.Server.Auth.GetSecret()) < 32 {
		warnings = append(warnings, "server.auth.secret is missing or shorter than 32 characters - API authentication will fail")
	}
	if cfg.Uploads.GetSecret() == "" {
		warnings = append(warnings, "uploads.secret is not set - upload token keys are derived from server.auth.secret")
	}
	if cfg.Metadata.Type == config.MetadataMemory {
		warnings = append(warnings, "metadata.type is memory - all metadata is lost on restart")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", path)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Metadata store:  %s\n", cfg.Metadata.Type)
	_, _ = fmt.Fprintf(out, "  Control plane:   %s\n", cfg.Database.Type)
	_, _ = fmt.Fprintf(out, "  Default backend: %s (%d configured)\n", cfg.Storage.DefaultBackend, len(cfg.Storage.Backends))
	_, _ = fmt.Fprintf(out, "  API port:        %d\n", cfg.Server.Port)
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)
	return nil
}
