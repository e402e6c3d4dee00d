package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/storagebox/pkg/api"
	"github.com/marmos91/storagebox/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file",
	Long: `Create a storagebox configuration file with freshly generated secrets.

By default, the file is created at $XDG_CONFIG_HOME/storagebox/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  storagebox config init

  # Initialize with custom path
  storagebox config init --config /etc/storagebox/config.yaml

  # Force overwrite existing config
  storagebox config init --force`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)

	var err error
	if path != "" {
		err = config.InitConfigToPath(path, initForce)
	} else {
		path, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", path)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit the configuration file to customize your setup")
	_, _ = fmt.Fprintf(out, "  2. Start the server with: storagebox start --config %s\n", path)
	_, _ = fmt.Fprintln(out, "  3. Issue a token with: storagebox token issue --subject <you> --cap create-fs")
	_, _ = fmt.Fprintln(out, "\nSecurity note:")
	_, _ = fmt.Fprintln(out, "  Random secrets were written to the file. In production, prefer environment variables:")
	_, _ = fmt.Fprintf(out, "    export %s=$(openssl rand -hex 32)\n", api.EnvUserTokenSecret)
	_, _ = fmt.Fprintf(out, "    export %s=$(openssl rand -hex 32)\n", config.EnvUploadSecret)
	return nil
}
