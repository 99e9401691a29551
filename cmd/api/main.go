package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"orchestrator/internal/adapter/credit"
	"orchestrator/internal/adapter/notify"
	"orchestrator/internal/adapter/queue"
	"orchestrator/internal/adapter/repo"
	"orchestrator/internal/http/handlers"
	"orchestrator/internal/http/httpapi"
	"orchestrator/internal/infra"
	"orchestrator/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	publisher := queue.NewPublisher(queue.Options{
		URL:        cfg.RabbitMQURL,
		Exchange:   cfg.GenerationExchange,
		RoutingKey: cfg.JobRoutingKey,
		MaxRetries: uint64(cfg.PublishMaxRetries),
		Logger:     logger,
	})
	if err := publisher.Connect(); err != nil {
		// Publish redials on demand, so a broker that is briefly down at
		// startup only delays the first dispatch.
		logger.Warn().Err(err).Msg("broker not reachable at startup")
	}
	defer publisher.Close()

	ledger, err := credit.NewClient(credit.Options{
		BaseURL: cfg.CreditServiceURL,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure credit service client")
	}
	notifier := notify.NewClient(cfg.NotificationServiceURL, nil, logger)

	pricing := service.Pricing{
		SampleTariff:         mustDecimal(logger, "CREDITS_COST_SAMPLE", cfg.CreditsCostSample),
		RegenerationTariff:   mustDecimal(logger, "CREDITS_COST_REGENERATION", cfg.CreditsCostRegeneration),
		FinalDefaultTariff:   mustDecimal(logger, "CREDITS_COST_FINAL", cfg.CreditsCostFinal),
		Final4KTariff:        mustDecimal(logger, "CREDITS_COST_FINAL_4K", cfg.CreditsCostFinal4K),
		UnlimitedSampleTiers: service.DefaultPricing().UnlimitedSampleTiers,
	}

	orchestrator := service.NewOrchestrator(
		repo.NewGenerationRequestRepository(dbpool),
		ledger,
		publisher,
		notifier,
		pricing,
		service.NewCallbackURLs(cfg.CallbackBaseURL),
		logger,
	)

	app := handlers.NewApp(orchestrator, logger)
	router := httpapi.NewRouter(app, cfg.CallbackSharedSecret)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("orchestration API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func mustDecimal(logger infra.Logger, name, value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		logger.Fatal().Err(err).Str("name", name).Str("value", value).Msg("invalid tariff configuration")
	}
	return d
}
