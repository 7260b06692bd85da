package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/playdeck/playdeck/internal/accounts"
	"github.com/playdeck/playdeck/internal/archive"
	"github.com/playdeck/playdeck/internal/catalog"
	"github.com/playdeck/playdeck/internal/config"
	"github.com/playdeck/playdeck/internal/db"
	"github.com/playdeck/playdeck/internal/logx"
	"github.com/playdeck/playdeck/internal/plays"
	"github.com/playdeck/playdeck/internal/ratings"
	repoaccounts "github.com/playdeck/playdeck/internal/repo/gorm/accounts"
	repocatalog "github.com/playdeck/playdeck/internal/repo/gorm/catalog"
	repoplays "github.com/playdeck/playdeck/internal/repo/gorm/plays"
	reporatings "github.com/playdeck/playdeck/internal/repo/gorm/ratings"
	"github.com/playdeck/playdeck/internal/rooms"
	"github.com/playdeck/playdeck/internal/runtime"
	httpserver "github.com/playdeck/playdeck/internal/server/http"
)

func main() {
	var cfgFile string
	root := &cobra.Command{
		Use:   "playdeck-server",
		Short: "Game platform server: catalog, rooms, sessions, ratings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return run(cfg)
		},
	}
	root.Flags().StringVar(&cfgFile, "config", "", "config file path (yaml)")
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logx.Setup(cfg.Log)

	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := repocatalog.AutoMigrate(gdb); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	if err := repoaccounts.AutoMigrate(gdb); err != nil {
		return fmt.Errorf("migrate accounts: %w", err)
	}
	if err := repoplays.AutoMigrate(gdb); err != nil {
		return fmt.Errorf("migrate plays: %w", err)
	}
	if err := reporatings.AutoMigrate(gdb); err != nil {
		return fmt.Errorf("migrate ratings: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, err := archive.Open(ctx, cfg.StorageURL, cfg.StorageDir)
	if err != nil {
		return fmt.Errorf("open package storage: %w", err)
	}
	defer blobs.Close()

	secret := cfg.JWTSecret
	if secret == "" {
		slog.Warn("auth.jwt_secret not set, using an ephemeral secret; tokens will not survive restarts")
		secret = fmt.Sprintf("ephemeral-%d", time.Now().UnixNano())
	}

	catRepo := repocatalog.NewRepo(gdb)
	cat := catalog.NewService(catRepo, blobs)
	acc := accounts.NewService(repoaccounts.NewRepo(gdb), accounts.NewTokenManager(secret, cfg.TokenTTL), cfg.OnlineTTL)
	tracker := plays.NewTracker(repoplays.NewRepo(gdb))
	led := ratings.NewLedger(reporatings.NewRepo(gdb), catRepo, tracker)
	reg := rooms.NewRegistry(cat)
	launch := rooms.NewLauncher(reg, blobs, tracker, runtime.NewExecHost(cfg.Interpreter), cfg.PublicHost, cfg.RuntimeDir)

	if cfg.SweepEvery > 0 {
		go func() {
			t := time.NewTicker(cfg.SweepEvery)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case now := <-t.C:
					reg.Sweep(now, cfg.RoomHeartbeatTimeout, cfg.ClosedRoomGrace)
				}
			}
		}()
	}

	srv := httpserver.New(cat, acc, tracker, led, reg, launch)
	if err := srv.Run(ctx, cfg.Addr); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}
