package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-tasks/internal/app"
	"github.com/celerix-dev/celerix-tasks/internal/config"
	"github.com/celerix-dev/celerix-tasks/internal/engine"
	"github.com/celerix-dev/celerix-tasks/internal/seed"
)

const shutdownTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "celerix-tasksd",
		Short: "Workflow-driven task tracking API",
		Long: `celerix-tasksd serves the celerix-tasks HTTP API: workflows with ordered
stages, tasks that move through them, activity history, notifications and
analytics.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file (default: ./celerix-tasks.yaml)")

	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
		logger := cfg.Log.NewLogger(os.Stderr)
		slog.SetDefault(logger)
		return cfg, logger, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newSeedCmd(load),
		newMigrateCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "celerix-tasksd %s\n", version)
			},
		},
	)
	return root
}

type loader func() (*config.Config, *slog.Logger, error)

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			gin.SetMode(cfg.GinMode)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           a.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("HTTP API listening", "addr", srv.Addr, "driver", cfg.Store.Driver)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err = <-errCh:
			case <-ctx.Done():
				logger.Info("shutdown signal received, finalizing writes")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				logger.Warn("HTTP shutdown", "error", serr)
			}
			if cerr := a.Close(shutdownCtx); cerr != nil {
				logger.Error("closing store", "error", cerr)
				if err == nil {
					err = cerr
				}
			}
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			return err
		},
	}
}

func newSeedCmd(load loader) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create workflows from a YAML file",
		Example: `  celerix-tasksd seed --file workflows.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			f, err := seed.ParseFile(file)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			res, err := seed.New(a.Store.Workflows(), a.Workflows, logger).Apply(ctx, f)
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, skipped %d workflows\n", res.Created, res.Skipped)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with a workflows list")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var from, to, fromKey, toKey string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy every collection between embedded stores",
		Example: `  celerix-tasksd migrate --from file:./data --to sqlite:./data/tasks.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			srcDriver, srcPath, err := app.ParseLocation(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			dstDriver, dstPath, err := app.ParseLocation(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			src, err := app.OpenPersister(srcDriver, srcPath, fromKey)
			if err != nil {
				return err
			}
			defer src.Close()
			dst, err := app.OpenPersister(dstDriver, dstPath, toKey)
			if err != nil {
				return err
			}
			defer dst.Close()

			n, err := engine.Migrate(src, dst)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d documents from %s to %s\n", n, from, to)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source, as file:DIR or sqlite:PATH")
	cmd.Flags().StringVar(&to, "to", "", "destination, as file:DIR or sqlite:PATH")
	cmd.Flags().StringVar(&fromKey, "from-key", "", "hex encryption key of the source, if sealed")
	cmd.Flags().StringVar(&toKey, "to-key", "", "hex encryption key for the destination")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
