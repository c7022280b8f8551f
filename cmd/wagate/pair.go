package main

import (
	"context"
	"fmt"
	"os"
	"time"

	EventBus "github.com/asaskevich/EventBus"
	"github.com/mdp/qrterminal/v3"
	"github.com/talkincode/wagate/config"
	"github.com/talkincode/wagate/internal/app"
	"github.com/talkincode/wagate/internal/whatsapp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// runPair logs in from the terminal: QR codes are rendered to stdout and
// the session is saved to the store once the client is ready.
func runPair(ctx context.Context, cfg *config.AppConfig) error {
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

	ready := make(chan whatsapp.Event, 1)
	err = bus.Subscribe(whatsapp.EventQR.Topic(), func(evt whatsapp.Event) {
		fmt.Println("Scan this QR code with WhatsApp (Linked devices):")
		qrterminal.GenerateHalfBlock(evt.QRCode, qrterminal.L, os.Stdout)
	})
	if err != nil {
		return err
	}
	err = bus.Subscribe(whatsapp.EventReady.Topic(), func(evt whatsapp.Event) {
		select {
		case ready <- evt:
		default:
		}
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return svc.Start(gctx) })
	g.Go(func() error {
		defer cancel()
		select {
		case <-gctx.Done():
			return gctx.Err()
		case evt := <-ready:
			fmt.Printf("Logged in as %s\n", evt.JID)
		}
		saveCtx, done := context.WithTimeout(context.Background(), 2*time.Minute)
		defer done()
		if err := svc.Backup(saveCtx); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		zap.L().Info("session saved", zap.String("session", svc.Session()))
		fmt.Println("Session saved.")
		return nil
	})
	return g.Wait()
}
