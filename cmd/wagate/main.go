// Command wagate runs the WhatsApp gateway: it restores the stored session,
// keeps the client connected and serves the admin API.
//
// Usage:
//
//	wagate -c wagate.yml          # run the gateway
//	wagate -c wagate.yml -pair    # print the login QR in the terminal, save the session and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	EventBus "github.com/asaskevich/EventBus"
	"github.com/talkincode/wagate/config"
	"github.com/talkincode/wagate/internal/adminapi"
	"github.com/talkincode/wagate/internal/app"
	"github.com/talkincode/wagate/internal/webhook"
	"github.com/talkincode/wagate/internal/webserver"
	"github.com/talkincode/wagate/internal/whatsapp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("c", "", "path to wagate.yml config file")
	pair := flag.Bool("pair", false, "pair a device from the terminal and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wagate: load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *pair {
		err = runPair(ctx, cfg)
	} else {
		err = run(ctx, cfg)
	}
	if err != nil {
		zap.L().Error("wagate: fatal", zap.Error(err))
		_ = zap.L().Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.AppConfig) error {
	application := app.NewApplication(cfg)
	if err := application.Init(cfg); err != nil {
		return err
	}
	defer application.Release()

	bus := EventBus.New()
	svc, err := whatsapp.New(application, bus, nil)
	if err != nil {
		return err
	}

	fw, err := webhook.New(application, webhook.Options{
		Session: cfg.Session.Name,
		Timeout: cfg.Webhook.Timeout,
		Workers: cfg.Webhook.Workers,
	})
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Subscribe(bus); err != nil {
		return err
	}

	err = application.AddIntervalJob("session-backup", cfg.Session.BackupInterval, cfg.Session.WaitTimeout*2, func(ctx context.Context) error {
		// nothing to back up until a device is linked
		if err := svc.Backup(ctx); err != nil && !errors.Is(err, whatsapp.ErrNotReady) {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	adminapi.Init(fw)
	server := webserver.NewAdminServer(application)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Start(gctx) })
	g.Go(func() error { return server.Start(gctx) })
	err = g.Wait()
	bus.WaitAsync()
	return err
}
