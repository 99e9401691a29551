package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/orchestrator")
	t.Setenv("CREDIT_SERVICE_URL", "http://credit.local")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port = %s", cfg.Port)
	}
	if cfg.GenerationExchange != "generation_jobs_exchange" {
		t.Errorf("exchange = %s", cfg.GenerationExchange)
	}
	if cfg.JobRoutingKey != "worker.job.generation" {
		t.Errorf("routing key = %s", cfg.JobRoutingKey)
	}
	if cfg.CreditsCostSample != "0.25" || cfg.CreditsCostFinal4K != "2" {
		t.Errorf("tariffs = %s / %s", cfg.CreditsCostSample, cfg.CreditsCostFinal4K)
	}
	if cfg.HTTPReadTimeout != 15*time.Second {
		t.Errorf("read timeout = %s", cfg.HTTPReadTimeout)
	}
}

func TestLoadConfigRequiredValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CREDIT_SERVICE_URL", "http://credit.local")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("missing DATABASE_URL must be rejected")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/orchestrator")
	t.Setenv("CREDIT_SERVICE_URL", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("missing CREDIT_SERVICE_URL must be rejected")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/orchestrator")
	t.Setenv("CREDIT_SERVICE_URL", "http://credit.local")
	t.Setenv("PORT", "9999")
	t.Setenv("RABBITMQ_PUBLISH_MAX_RETRIES", "7")
	t.Setenv("CREDITS_COST_SAMPLE", "0.5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9999" || cfg.PublishMaxRetries != 7 || cfg.CreditsCostSample != "0.5" {
		t.Errorf("overrides not applied: %s / %d / %s", cfg.Port, cfg.PublishMaxRetries, cfg.CreditsCostSample)
	}
}
