package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"signal-trading-bot/internal/engine"
	"signal-trading-bot/internal/logger"
	"signal-trading-bot/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "signalbot",
		Short:         "Parse Telegram trading signals and gate them through the risk sentinel",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeSystem()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config.yaml")

	root.AddCommand(
		newRunCmd(&configPath),
		newServeCmd(&configPath),
		newParseCmd(&configPath),
		newKillSwitchCmd(&configPath),
	)
	return root
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newRunCmd(configPath *string) *cobra.Command {
	var withServer bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Consume the configured message source through the full pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}
			a, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.shutdown(context.Background())

			sched, err := a.startScheduler(ctx)
			if err != nil {
				return err
			}
			defer sched.Stop()

			if withServer {
				srv := a.newServer()
				go func() {
					if err := srv.Start(ctx); err != nil {
						logger.ErrorWithErr(ctx, "HTTP server failed", err)
					}
				}()
			}

			src, err := openSource(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open source: %w", err)
			}
			defer src.Close()

			logger.Info(ctx, "Bot started", "mode", cfg.Mode, "source", cfg.Source.Kind)
			err = engine.Run(ctx, a.engine, src)
			logger.Info(ctx, "Shutting down...",
				"equity", a.sentinel.Equity(),
				"open_positions", len(a.paper.OpenPositions()),
			)
			return err
		},
	}
	cmd.Flags().BoolVar(&withServer, "serve", false, "also start the HTTP API")
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the parse, validate and risk HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}
			a, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.shutdown(context.Background())

			sched, err := a.startScheduler(ctx)
			if err != nil {
				return err
			}
			defer sched.Stop()

			return a.newServer().Start(ctx)
		},
	}
}

func newParseCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "parse [text]",
		Short: "Parse one message (argument or stdin) and print the signal as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			text := strings.Join(args, " ")
			if text == "" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(b)
			}

			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}
			a, err := buildParser(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.shutdown(context.Background())

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a.parser.Parse(ctx, text))
		},
	}
}

func newKillSwitchCmd(configPath *string) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:       "killswitch on|off|status",
		Short:     "Create, remove or inspect the kill-switch marker",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}
			sentinel := initializeSentinel(ctx, cfg)

			switch args[0] {
			case "on":
				err = sentinel.ActivateKillSwitch(ctx, reason)
			case "off":
				err = sentinel.DeactivateKillSwitch(ctx)
			}
			if err != nil {
				return err
			}
			active, why := sentinel.KillSwitchActive()
			if active {
				fmt.Fprintf(cmd.OutOrStdout(), "kill switch ACTIVE (%s): %s\n", cfg.Risk.KillSwitchPath, why)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "kill switch off (%s)\n", cfg.Risk.KillSwitchPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "reason written into the marker")
	return cmd
}

func (a *app) newServer() *server.Server {
	opts := []server.Option{
		server.WithCache(a.cache),
		server.WithPool(a.pool),
		server.WithMetrics(a.metrics.Handler()),
	}
	if a.paper != nil {
		opts = append(opts, server.WithExecutor(a.paper))
	}
	return server.New(a.cfg.Server.Addr, a.parser, a.sentinel, opts...)
}
