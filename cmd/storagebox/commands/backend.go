package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/storagebox/internal/cli/output"
	"github.com/marmos91/storagebox/internal/cli/prompt"
	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/config"
	"github.com/marmos91/storagebox/pkg/controlplane/models"
	"github.com/marmos91/storagebox/pkg/controlplane/store"
)

var (
	backendOutput   string
	backendType     string
	backendSettings []string
	backendForce    bool
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Manage storage backends",
	Long: `Manage the storage backends registered in the control plane.

Every file records the ID of the backend holding its bytes, so a backend must
stay registered while files reference it.`,
}

var backendListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered backends",
	Args:  cobra.NoArgs,
	RunE:  runBackendList,
}

var backendAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Register a backend",
	Long: `Register a storage backend in the control plane.

Examples:
  # Local directory
  storagebox backend add local --type filesystem --set path=/var/lib/storagebox/blobs

  # S3 with presigned downloads
  storagebox backend add archive --type s3 --set bucket=files --set region=eu-west-1 \
    --set download_urls=true`,
	Args: cobra.ExactArgs(1),
	RunE: runBackendAdd,
}

var backendRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Unregister a backend",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackendRemove,
}

func init() {
	backendListCmd.Flags().StringVarP(&backendOutput, "output", "o", "table", "Output format (table|json|yaml)")

	backendAddCmd.Flags().StringVar(&backendType, "type", "", "Backend type (memory|filesystem|s3)")
	backendAddCmd.Flags().StringArrayVar(&backendSettings, "set", nil, "Backend setting as key=value (repeatable)")
	_ = backendAddCmd.MarkFlagRequired("type")

	backendRemoveCmd.Flags().BoolVarP(&backendForce, "force", "f", false, "Skip confirmation")

	backendCmd.AddCommand(backendListCmd)
	backendCmd.AddCommand(backendAddCmd)
	backendCmd.AddCommand(backendRemoveCmd)
}

// openControlPlane opens the backend registry without seeding it, so the
// commands see exactly what is stored.
func openControlPlane() (*store.GORMStore, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}
	db := cfg.Database
	return store.New(&db)
}

// backendList renders registered backends.
type backendList []*models.BackendConfig

func (l backendList) Headers() []string {
	return []string{"ID", "Type", "Settings", "Created"}
}

func (l backendList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, b := range l {
		cfg, _ := b.GetConfig()
		rows = append(rows, []string{b.ID, b.Type, formatSettings(cfg), b.CreatedAt.Format("2006-01-02 15:04")})
	}
	return rows
}

func runBackendList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(backendOutput)
	if err != nil {
		return err
	}

	cp, err := openControlPlane()
	if err != nil {
		return err
	}
	defer func() { _ = cp.Close() }()

	backends, err := cp.ListBackends(context.Background())
	if err != nil {
		return err
	}
	for _, b := range backends {
		if _, err := b.GetConfig(); err != nil {
			return fmt.Errorf("backend %s: %w", b.ID, err)
		}
		redact(b.ParsedConfig)
	}
	return output.Print(cmd.OutOrStdout(), format, backendList(backends))
}

func runBackendAdd(cmd *cobra.Command, args []string) error {
	settings, err := parseSettings(backendSettings)
	if err != nil {
		return err
	}
	row, err := models.NewBackendConfig(backend.Definition{
		ID:     args[0],
		Type:   backend.Type(backendType),
		Config: settings,
	})
	if err != nil {
		return err
	}

	cp, err := openControlPlane()
	if err != nil {
		return err
	}
	defer func() { _ = cp.Close() }()

	if err := cp.CreateBackend(context.Background(), row); err != nil {
		if errors.Is(err, models.ErrDuplicateBackend) {
			return fmt.Errorf("backend %q already exists", row.ID)
		}
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Backend %q registered (%s)\n", row.ID, row.Type)
	return nil
}

func runBackendRemove(cmd *cobra.Command, args []string) error {
	id := args[0]
	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Remove backend %q", id), backendForce)
	if err != nil {
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
		return nil
	}

	cp, err := openControlPlane()
	if err != nil {
		return err
	}
	defer func() { _ = cp.Close() }()

	if err := cp.DeleteBackend(context.Background(), id); err != nil {
		if errors.Is(err, models.ErrBackendNotFound) {
			return fmt.Errorf("backend %q not found", id)
		}
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Backend %q removed\n", id)
	return nil
}

// parseSettings turns key=value pairs into a backend config map. The
// literals true and false become booleans.
func parseSettings(pairs []string) (map[string]any, error) {
	settings := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid setting %q: expected key=value", pair)
		}
		switch value {
		case "true":
			settings[key] = true
		case "false":
			settings[key] = false
		default:
			settings[key] = value
		}
	}
	return settings, nil
}

func redact(cfg map[string]any) {
	for k := range cfg {
		if strings.Contains(k, "secret") {
			cfg[k] = "********"
		}
	}
}

func formatSettings(cfg map[string]any) string {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, cfg[k]))
	}
	return strings.Join(parts, " ")
}
