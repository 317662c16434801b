package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sliink/eventd/internal/core"
	"github.com/sliink/eventd/internal/plugin"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	configFile string
	envFile    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "eventd",
		Short:         "eventd - watch sources for events, sync, notify and run hooks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(envFile)
		},
		RunE: runDaemon,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "configs/eventd.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file applied before the configuration")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the daemon until SIGINT or SIGTERM",
		RunE:  runDaemon,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and plugin declarations, then exit",
		RunE:  validateConfig,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "identity",
		Short: "Print a freshly signed identity for this configuration",
		RunE:  printIdentity,
	})

	return rootCmd
}

// loadEnvFile applies a dotenv file without overriding variables already
// set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := core.LoadConfig(configFile)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, appOptions{Version: version, Console: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	return a.run(ctx)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := core.LoadConfig(configFile)
	if err != nil {
		return err
	}
	plugins, err := plugin.CreatePlugins(newPluginFactory(nil), pluginSpecs(cfg))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d plugins)\n", cfg.Path(), len(plugins))
	return nil
}

func printIdentity(cmd *cobra.Command, args []string) error {
	cfg, err := core.LoadConfig(configFile)
	if err != nil {
		return err
	}
	identity := core.NewIdentity(cfg.Identity.Namespace, identityVersion(cfg))
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(identity)
}

func identityVersion(cfg *core.Config) string {
	if cfg.Identity.Version != "" {
		return cfg.Identity.Version
	}
	return version
}
