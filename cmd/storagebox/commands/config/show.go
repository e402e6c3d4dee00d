package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/storagebox/internal/cli/output"
	"github.com/marmos91/storagebox/pkg/config"
)

const redacted = "********"

var (
	showOutput  string
	showSecrets bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective storagebox configuration, defaults included.

Secrets are masked unless --show-secrets is given.

Examples:
  # Show as YAML
  storagebox config show

  # Show as JSON
  storagebox config show --output json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print secrets and passwords in clear text")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(configPath(cmd))
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		format = output.FormatYAML
	}

	if !showSecrets {
		maskSecrets(cfg)
	}
	return output.Print(cmd.OutOrStdout(), format, cfg)
}

func maskSecrets(cfg *config.Config) {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cfg.Server.Auth.Secret)
	mask(&cfg.Uploads.Secret)
	mask(&cfg.Metadata.Postgres.Password)
	mask(&cfg.Database.Postgres.Password)

	backends := cfg.Storage.Backends
	for i := range backends {
		if _, ok := backends[i].Config["secret_access_key"]; ok {
			backends[i].Config["secret_access_key"] = redacted
		}
	}
}
