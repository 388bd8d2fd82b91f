package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/sessionstream/pkg/keeper"
	"github.com/go-go-golems/sessionstream/pkg/snapshot"
	"github.com/go-go-golems/sessionstream/pkg/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the keeper service until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := keeper.LoadConfig(configPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc, err := buildService(ctx, cfg)
		if err != nil {
			return err
		}

		g, runCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := svc.Start(runCtx); err != nil {
				return errors.Wrap(err, "start service")
			}
			<-runCtx.Done()
			return svc.Close()
		})

		log.Info().Str("command_topic", cfg.CommandTopic).Str("reply_topic", cfg.ReplyTopic).Str("poll_topic", cfg.PollTopic).Bool("redis", cfg.Redis.Enabled).Msg("sessionstream keeper serving")
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to yaml config file")
}

func buildService(ctx context.Context, cfg keeper.Config) (*keeper.Service, error) {
	backend, err := transport.NewBackend(ctx, cfg.Redis)
	if err != nil {
		return nil, errors.Wrap(err, "build command backend")
	}

	var store snapshot.Store
	if cfg.SnapshotPath != "" {
		dsn, err := snapshot.SQLiteDSNForFile(cfg.SnapshotPath)
		if err != nil {
			return nil, err
		}
		store, err = snapshot.NewSQLiteStore(dsn, cfg.SnapshotSlot, cfg.SnapshotTTL)
		if err != nil {
			return nil, errors.Wrap(err, "open snapshot store")
		}
	} else {
		log.Warn().Str("component", "keeper").Msg("no snapshot_path configured, snapshots will not survive a process teardown")
		store = snapshot.NewMemoryStore(cfg.SnapshotTTL)
	}

	var guarantee keeper.ExecutionGuarantee = keeper.NoopGuarantee{}
	var indicator keeper.Indicator = keeper.LogIndicator{}
	if cfg.Redis.Enabled {
		if err := transport.EnsureGroupAtTail(ctx, cfg.Redis.Addr, cfg.CommandTopic, cfg.Redis.Group); err != nil {
			log.Warn().Err(err).Msg("failed to pre-create command consumer group")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		guarantee, err = keeper.NewRedisLeaseGuarantee(client, cfg.GuaranteeKey, cfg.Redis.Consumer)
		if err != nil {
			return nil, err
		}
		indicator = keeper.NewRedisIndicator(client, cfg.IndicatorKey, cfg.GuaranteeMaxHold)
	}

	return keeper.NewService(ctx, cfg, backend, guarantee, indicator, store)
}
