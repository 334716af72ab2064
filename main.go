package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/support-router/server/internal/agent"
	"github.com/support-router/server/internal/agent/model"
	"github.com/support-router/server/internal/app"
	logx "github.com/support-router/server/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	var cfg app.AppConfig

	root := &cobra.Command{
		Use:           "support-router",
		Short:         "Customer support router with per-user memory",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = app.LoadConfig(envFile)
			if err != nil {
				return err
			}
			cfg.InitLogger()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(
		newServeCmd(&cfg),
		newAskCmd(&cfg),
		newStatsCmd(&cfg),
		newHistoryCmd(&cfg),
	)
	return root
}

func newServeCmd(cfg *app.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP support API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, *cfg)
			if err != nil {
				logx.Error().Err(err).Msg("failed to start")
				return err
			}
			defer a.Close()
			return a.Serve(ctx)
		},
	}
}

func newAskCmd(cfg *app.AppConfig) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Run one query through the support graph and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, *cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if userID == "" {
				userID = agent.NewUserID()
			}
			res, err := a.Service.Handle(ctx, model.QueryInput{Query: args[0], UserID: userID})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id; a new one is generated when empty")
	return cmd
}

func newStatsCmd(cfg *app.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print learning store counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := app.OpenStore(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			return printJSON(cmd, store.Summary())
		},
	}
}

func newHistoryCmd(cfg *app.AppConfig) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <user_id>",
		Short: "Print a user's recent conversations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := app.OpenStore(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			return printJSON(cmd, store.RecentConversations(args[0], limit))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of conversations")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

