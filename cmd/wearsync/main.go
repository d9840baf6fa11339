package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peakform/wearsync/internal/backfill"
	"github.com/peakform/wearsync/internal/config"
	"github.com/peakform/wearsync/internal/docstore"
	"github.com/peakform/wearsync/internal/httpapi"
	"github.com/peakform/wearsync/internal/journal"
	"github.com/peakform/wearsync/internal/logging"
	"github.com/peakform/wearsync/internal/wearable"
	"github.com/peakform/wearsync/internal/whoop"
)

func main() {
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
	log := logging.WithComponent("main")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	store, err := docstore.BuildStoreFromDSN(cfg.DocStoreDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("document store initialization failed")
	}

	registry := wearable.NewRegistry()
	registry.Register(whoop.New(whoop.Options{
		ClientID:      cfg.WhoopClientID,
		ClientSecret:  cfg.WhoopClientSecret,
		WebhookSecret: cfg.WhoopWebhookSecret,
		AllowedUserID: cfg.WhoopUserID,
		Store:         store,
		Logger:        logging.WithComponent("whoop"),
		MaxRetries:    cfg.VendorMaxRetries,
		BaseDelay:     cfg.VendorBaseDelay,
	}))
	for _, integration := range registry.Configured() {
		log.Info().Str("vendor", integration.Slug()).Msg("integration configured")
	}

	dayJournal := journal.New(store, logging.WithComponent("journal"))
	syncer := backfill.NewSyncer(registry, dayJournal, logging.WithComponent("backfill"))

	var notifier wearable.Notifier = wearable.NoopNotifier{}
	if cfg.NotifyEndpoint != "" {
		notifier = wearable.NewHTTPNotifier(wearable.HTTPNotifierOptions{
			Endpoint:  cfg.NotifyEndpoint,
			AuthToken: cfg.NotifyAuthToken,
			Logger:    logging.WithComponent("notifier"),
		})
	}

	gin.SetMode(gin.ReleaseMode)
	server := httpapi.NewServer(httpapi.ServerOptions{
		Registry:     registry,
		Journal:      dayJournal,
		Syncer:       syncer,
		Notifier:     notifier,
		Logger:       logging.WithComponent("httpapi"),
		SyncSecret:   cfg.SyncSecret,
		RedirectURI:  cfg.WhoopRedirectURI,
		SyncWebhooks: cfg.SyncWebhooks,
	})

	log.Info().Str("addr", cfg.HTTPAddress).Msg("wearsync listening")
	if err := http.ListenAndServe(cfg.HTTPAddress, server.Router()); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.HTTPAddress).Msg("server failed")
	}
}
