package standard

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ccheshirecat/volterm/internal/cli/config"
	"github.com/ccheshirecat/volterm/internal/cli/tui"
	"github.com/ccheshirecat/volterm/internal/shared/logging"
)

// Version is stamped at build time.
var Version = "dev"

// Execute runs the Cobra-based CLI entry point.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "volterm",
		Short: "Remote shell with an AI assistant",
		Long:  "volterm drives voltermd shell sessions from a terminal UI, with AI explanations and ghost-text completion.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return cmd.Help()
			}
			cfg, err := configFromCmd(cmd)
			if err != nil {
				return err
			}
			level, err := logging.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			logger, closer, err := logging.NewFile("tui", cfg.LogFile, level)
			if err != nil {
				return err
			}
			defer closer.Close()
			logger.Info("starting tui", "api", cfg.APIBase, "ingest", string(cfg.Ingest))
			return tui.Run(cfg, logger)
		},
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringP("api", "a", "", "voltermd base URL (default from config or VOLTERM_API_BASE)")
	flags.String("ingest", "", "output ingestion: poll, push or both")
	flags.Duration("debounce", 0, "autocomplete debounce delay")
	flags.Duration("poll-interval", 0, "output poll interval")
	flags.String("log-file", "", "write TUI logs to this file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatusCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the volterm client version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "volterm %s\n", Version)
		},
	}
}

// configFromCmd layers explicitly set flags over the loaded configuration.
func configFromCmd(cmd *cobra.Command) (config.ClientConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.ClientConfig{}, err
	}
	flags := cmd.Root().PersistentFlags()
	if flags.Changed("api") {
		cfg.APIBase, _ = flags.GetString("api")
	}
	if flags.Changed("ingest") {
		raw, _ := flags.GetString("ingest")
		cfg.Ingest = config.IngestMode(raw)
	}
	if flags.Changed("debounce") {
		cfg.Debounce, _ = flags.GetDuration("debounce")
	}
	if flags.Changed("poll-interval") {
		cfg.PollInterval, _ = flags.GetDuration("poll-interval")
	}
	if flags.Changed("log-file") {
		cfg.LogFile, _ = flags.GetString("log-file")
	}
	if err := cfg.Validate(); err != nil {
		return config.ClientConfig{}, err
	}
	return cfg, nil
}
