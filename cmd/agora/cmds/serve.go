package cmds

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/odosui/agora/pkg/eventbus"
	"github.com/odosui/agora/pkg/persistence/chatstore"
	"github.com/odosui/agora/pkg/webchat"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log.Info().
				Str("config", cfg.Path).
				Int("profiles", cfg.Profiles.Len()).
				Bool("redis", cfg.Redis.Enabled).
				Msg("configuration loaded")

			store, err := openStore(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			bus, err := eventbus.New(cfg.Redis, eventbus.NewLogger(log.Logger))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return webchat.NewServer(cfg, store, bus).Run(ctx)
		},
	}
}

func openStore(path string) (*chatstore.SQLiteStore, error) {
	dsn, err := chatstore.SQLiteDSNForFile(path)
	if err != nil {
		return nil, err
	}
	return chatstore.NewSQLiteStore(dsn)
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			// opening the store applies pending migrations
			store, err := openStore(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			v, err := store.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().Str("database", cfg.DatabaseURL).Int("version", v).Msg("database is up to date")
			return nil
		},
	}
}
