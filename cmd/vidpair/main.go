package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"vidpair/internal/app"
	"vidpair/internal/config"
	"vidpair/internal/model"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
func newApp(ctx context.Context) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "vidpair",
	Short: "Session recording pair correlator",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Log Dir:          %s\n", cfg.LogDir)
		fmt.Printf("Retention Window: %s\n", cfg.RetentionWindow())
		fmt.Printf("Match Window:     %s\n", cfg.MatchWindow())
		fmt.Printf("Store:            %s\n", cfg.Store.Type)
		fmt.Printf("Runner:           %s\n", cfg.Runner.Type)
		if cfg.Queue.URL != "" {
			fmt.Printf("Queue:            %s\n", cfg.Queue.URL)
		}
		return nil
	},
}

// process command
var processCmd = &cobra.Command{
	Use:   "process BUCKET KEY",
	Short: "Run one object through the correlation pipeline",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		outcome := a.ProcessObject(ctx, args[0], args[1])
		return printJSON(outcome)
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Consume upload notifications from the configured queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(ctx)
	},
}

// replay command
var replayCmd = &cobra.Command{
	Use:   "replay BUCKET",
	Short: "Re-ingest recordings from a bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefixes, _ := cmd.Flags().GetStringSlice("prefix")

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Replay(ctx, args[0], prefixes)
		if err != nil {
			return fmt.Errorf("replay failed: %w", err)
		}

		fmt.Printf("Scanned %d object(s): %d dispatched, %d awaiting, %d ignored, %d failed\n",
			result.Scanned, result.Dispatched, result.Awaiting, result.Ignored, result.Failed)
		return nil
	},
}

// records command
var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect arrival records",
}

var recordsListCmd = &cobra.Command{
	Use:   "list SESSION",
	Short: "List live arrival records for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.ListRecords(ctx, args[0])
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No live records.")
			return nil
		}

		for _, r := range records {
			state := "unmatched"
			if r.Claimed() {
				state = "matched:" + r.MatchedWith
			}
			fmt.Printf("%-9s  %s  %s  %s\n", r.Role, r.CanonicalTimestamp, state, r.ArtifactID)
		}
		return nil
	},
}

func printJSON(outcome model.Outcome) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(outcome)
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// records subcommands
	recordsCmd.AddCommand(recordsListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringSlice("prefix", nil, "Key prefix to scan (repeatable; defaults to both role prefixes)")
	rootCmd.AddCommand(recordsCmd)
}
