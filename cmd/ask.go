package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kvasirlabs/askpilot/api/schemas"
	"github.com/kvasirlabs/askpilot/internal/auth"
	"github.com/kvasirlabs/askpilot/internal/browser"
	"github.com/kvasirlabs/askpilot/internal/config"
	"github.com/kvasirlabs/askpilot/internal/extract"
	"github.com/kvasirlabs/askpilot/internal/interact"
	"github.com/kvasirlabs/askpilot/internal/observability"
	"github.com/kvasirlabs/askpilot/internal/pipeline"
	"github.com/kvasirlabs/askpilot/internal/results"
	"github.com/kvasirlabs/askpilot/internal/stability"
)

const sessionCloseGracePeriod = 10 * time.Second

// newAskCmd creates the `ask` command, the main entry point for one query.
func newAskCmd() *cobra.Command {
	askCmd := &cobra.Command{
		Use:   "ask [query...]",
		Short: "Submits a query through an authenticated browser session and prints the extracted answer",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("target.url", cmd.Flags().Lookup("target")); err != nil {
				return err
			}
			if err := viper.BindPFlag("auth.credential_file", cmd.Flags().Lookup("credentials")); err != nil {
				return err
			}
			// No blanket BindPFlags here: the flag is named "target" and a
			// top-level viper key "target" would collide with the target
			// config section, clobbering target.url with a bare string.
			return viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if cfg.Target.URL == "" {
				return fmt.Errorf("no target URL configured (use --target or target.url)")
			}

			query := strings.Join(args, " ")
			logger.Info("Starting query run",
				zap.String("target", cfg.Target.URL),
				zap.Int("query_length", len(query)))

			creds, err := auth.LoadCredentials(cfg.Auth.CredentialFile, cfg.Auth.CriticalNames, logger)
			if err != nil {
				return fmt.Errorf("failed to load credentials: %w", err)
			}

			components, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			run, execErr := components.Pipeline.Execute(ctx, components.Session, query, creds)
			if run != nil {
				if err := printRun(run); err != nil {
					return err
				}
			}
			if execErr != nil {
				if errors.Is(execErr, context.Canceled) {
					logger.Warn("Run aborted by user signal")
					return fmt.Errorf("run aborted by user signal")
				}
				return execErr
			}
			return nil
		},
	}

	askCmd.Flags().StringP("target", "t", "", "Answer engine URL. (Overrides config/env)")
	askCmd.Flags().String("credentials", "", "Path to the credential JSON file. (Overrides config/env)")
	askCmd.Flags().Bool("headless", true, "Run the browser headless. (Overrides config/env)")
	return askCmd
}

// components holds the initialized services for one run.
type components struct {
	Session  *browser.Session
	Store    *results.Store
	Pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

// Shutdown closes the browser and the store, in that order.
func (c *components) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), sessionCloseGracePeriod)
	defer cancel()

	if c.Session != nil {
		if err := c.Session.Close(ctx); err != nil {
			c.logger.Warn("Error during browser shutdown", zap.Error(err))
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			c.logger.Warn("Error closing result store", zap.Error(err))
		}
	}
}

// initializeComponents handles dependency wiring.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{logger: logger}

	var sink schemas.ResultSink
	if cfg.Store.Path != "" {
		store, err := results.NewStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open result store: %w", err)
		}
		c.Store = store
		sink = store
	}

	session, err := browser.NewSession(ctx, cfg.Browser, logger)
	if err != nil {
		c.Shutdown()
		return nil, err
	}
	c.Session = session

	c.Pipeline = pipeline.New(cfg, logger,
		auth.NewInjector(cfg.Auth, logger),
		interact.NewSimulator(cfg.Interaction, logger),
		stability.NewDetector(cfg.Stability, logger),
		extract.NewExtractor(cfg.Extraction, logger),
		sink,
	)
	return c, nil
}

// printRun writes the run envelope to stdout as indented JSON.
func printRun(run *schemas.PipelineRun) error {
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
