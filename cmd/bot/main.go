package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"eventsnow-bot/internal/config"
	"eventsnow-bot/internal/moderation"
	"eventsnow-bot/internal/notify"
	"eventsnow-bot/internal/payments"
	"eventsnow-bot/internal/payments/providers"
	"eventsnow-bot/internal/server"
	"eventsnow-bot/internal/sheets"
	"eventsnow-bot/internal/store"
	"eventsnow-bot/internal/tgbot"
	"eventsnow-bot/internal/util"
	"eventsnow-bot/internal/wizard"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.SetPrefix("EVENTSNOW ")

	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gateway, err := providers.New(cfg)
	if err != nil {
		log.Fatalf("payments: %v", err)
	}

	client, err := tgbot.Dial(cfg.TelegramToken)
	if err != nil {
		log.Fatalf("telegram: %v", err)
	}
	log.Printf("✅ Бот: @%s", client.Username())

	deps := moderation.Deps{
		Store:          st,
		Admins:         cfg.Admins,
		Catalog:        cfg.Catalog,
		Sender:         client,
		FanOut:         notify.NewFanOut(st, client, cfg.Catalog, notify.Options{Throttle: cfg.NotifyThrottle, BotUsername: cfg.BotUsername}),
		Gateway:        gateway,
		RealPayments:   cfg.PaymentsRealEnabled,
		ReturnURL:      cfg.ReturnURL(),
		GatewayTimeout: cfg.GatewayTimeout,
	}
	if cfg.SheetsEnabled() {
		sc, err := sheets.New(ctx, cfg.GoogleServiceAccountJSON, cfg.SpreadsheetID)
		if err != nil {
			log.Fatalf("sheets: %v", err)
		}
		deps.Ledger = sheets.NewLedger(sc)
		log.Printf("sheets ledger: %s", sc.SpreadsheetID())
	}
	svc := moderation.New(deps)
	if svc.TestMode() {
		log.Println("payments: test mode, organizers confirm with the test button")
	} else {
		log.Printf("payments: real, provider %s", gateway.Name())
	}

	sessions := wizard.NewRegistry(cfg.SessionIdleTimeout)
	botApp := tgbot.New(cfg, client, tgbot.Deps{
		Store:    st,
		Service:  svc,
		Wizard:   wizard.NewMachine(cfg.Catalog),
		Sessions: sessions,
	})

	var webhooks payments.Provider
	if !svc.TestMode() {
		webhooks = gateway
	}
	httpSrv := server.New(cfg, svc, st, webhooks)

	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := sched.AddFunc(cfg.ArchiveCron, func() {
		if _, err := svc.Archive(ctx, util.Today(time.Now())); err != nil {
			log.Printf("archive: %v", err)
		}
	}); err != nil {
		log.Fatalf("cron %q: %v", cfg.ArchiveCron, err)
	}
	if _, err := sched.AddFunc("@every 1m", func() {
		if n := sessions.Evict(time.Now()); n > 0 {
			log.Printf("wizard: evicted %d idle sessions", n)
		}
	}); err != nil {
		log.Fatalf("cron: %v", err)
	}
	sched.Start()

	// Start HTTP server
	go func() {
		log.Printf("HTTP listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	// Start Telegram
	go func() {
		if err := botApp.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("bot stopped: %v", err)
			cancel()
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down...")

	cancel()
	<-sched.Stop().Done()
	ctxTimeout, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = httpSrv.Shutdown(ctxTimeout)
	svc.Wait()

	log.Println("bye")
}
