package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/labelscan/internal/config"
	"github.com/MeKo-Tech/labelscan/internal/version"
)

var (
	// Global configuration loader.
	configLoader *config.Loader
	// Global configuration.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "labelscan",
	Short: "Resolve product labels to catalog entities",
	Long: `labelscan turns product label captures into catalog products.

A label can arrive as a decoded barcode or QR payload, as a photo, as a PDF
label sheet or as already recognized text. Structured codes are trusted first;
photos go through text recognition with bounded retries on image variants, and
the recognized text is matched against the product catalog. Every result is
one of exact, fuzzy, ambiguous or unresolved.

Examples:
  labelscan resolve label.jpg --catalog products.yaml
  labelscan decode "https://labels.example.com/p?id=PROD-00007"
  labelscan text "Organic Apples LOT A-100"
  labelscan scan --dir ./inbox --stop-on-resolved
  labelscan serve --port 8080`,
	Version:           version.String(),
	PersistentPreRunE: setupCommand,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for tests that must not exit.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.SetVersionTemplate("{{.Name}} version {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/labelscan, /etc/labelscan)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("catalog", "", "catalog file (.yaml, .yml or .json)")
	pf.String("catalog-dsn", "", "PostgreSQL DSN for the catalog (wins over --catalog)")
	pf.String("backend", config.BackendTesseract, "text recognizer backend (tesseract, vision, none)")

	bindRootFlags()
}

// setupCommand loads the configuration and installs the JSON logger before
// any subcommand runs. Logs go to stderr so results on stdout stay parseable.
func setupCommand(cmd *cobra.Command, _ []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	cfg := GetConfig()

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	} else if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig reads the configuration file and LABELSCAN_ environment.
func loadConfig() error {
	configLoader = config.NewLoader()
	loaded, err := configLoader.LoadWith(config.LoadOptions{File: cfgFile})
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	globalConfig = loaded
	return nil
}

// GetConfig returns the effective configuration including flags bound after
// the last load.
func GetConfig() *config.Config {
	if globalConfig == nil {
		if err := loadConfig(); err != nil {
			slog.Error("Falling back to default configuration", "error", err)
			cfg := config.DefaultConfig()
			return &cfg
		}
	}

	var cfg config.Config
	if err := GetConfigLoader().Viper().Unmarshal(&cfg); err != nil {
		slog.Error("Failed to apply flag overrides", "error", err)
		return globalConfig
	}
	return &cfg
}

// GetConfigLoader returns the global configuration loader.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoader()
	}
	return configLoader
}

// bindRootFlags binds the global flags to their configuration keys on the
// global viper instance.
func bindRootFlags() {
	bindFlags(rootCmd.PersistentFlags().Lookup, []flagBinding{
		{"verbose", "verbose"},
		{"log_level", "log-level"},
		{"catalog.file", "catalog"},
		{"catalog.dsn", "catalog-dsn"},
		{"recognizer.backend", "backend"},
	})
}

type flagBinding struct {
	key  string
	flag string
}

// bindFlags binds flags to viper configuration keys.
func bindFlags(lookup func(string) *pflag.Flag, bindings []flagBinding) {
	for _, binding := range bindings {
		if err := viper.BindPFlag(binding.key, lookup(binding.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", binding.flag, err))
		}
	}
}
