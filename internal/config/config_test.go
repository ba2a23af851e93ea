package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Dispatch.OfferTTL != 5*time.Minute {
		t.Errorf("expected default offer TTL 5m, got %v", cfg.Dispatch.OfferTTL)
	}
	if cfg.Dispatch.MaxOfferAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.Dispatch.MaxOfferAttempts)
	}
	if cfg.Dispatch.OTPLength != 4 {
		t.Errorf("expected default OTP length 4, got %d", cfg.Dispatch.OTPLength)
	}
	if cfg.Dispatch.MaxOTPAttempts != 5 {
		t.Errorf("expected default max OTP attempts 5, got %d", cfg.Dispatch.MaxOTPAttempts)
	}
	if cfg.Redis.PoolSize != 20 || cfg.Redis.CommandTimeout != 2*time.Second {
		t.Errorf("expected redis pool 20 with 2s commands, got %d/%s", cfg.Redis.PoolSize, cfg.Redis.CommandTimeout)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("OFFER_TTL", "90s")
	t.Setenv("MAX_OFFER_ATTEMPTS", "5")
	t.Setenv("OTP_LENGTH", "6")
	t.Setenv("NOTIFY_SINKS", " Redis, AMQP ,,")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()

	if cfg.Dispatch.OfferTTL != 90*time.Second {
		t.Errorf("expected offer TTL 90s, got %v", cfg.Dispatch.OfferTTL)
	}
	if cfg.Dispatch.MaxOfferAttempts != 5 {
		t.Errorf("expected max attempts 5, got %d", cfg.Dispatch.MaxOfferAttempts)
	}
	if cfg.Dispatch.OTPLength != 6 {
		t.Errorf("expected OTP length 6, got %d", cfg.Dispatch.OTPLength)
	}
	if want := []string{"redis", "amqp"}; !reflect.DeepEqual(cfg.Dispatch.NotifySinks, want) {
		t.Errorf("expected sinks %v, got %v", want, cfg.Dispatch.NotifySinks)
	}
	if cfg.Redis.DB != 0 {
		t.Errorf("expected invalid REDIS_DB to fall back to 0, got %d", cfg.Redis.DB)
	}
}

func TestLoad_PricingOverrides(t *testing.T) {
	t.Setenv("TARIFF_BASE_FARE", "450.5")
	t.Setenv("TARIFF_PER_EXTRA_KM", "oops")

	cfg := Load()

	if cfg.Pricing.BaseFare != 450.5 {
		t.Errorf("expected base fare 450.5, got %v", cfg.Pricing.BaseFare)
	}
	if cfg.Pricing.PerExtraKm != 12 {
		t.Errorf("expected invalid per-km rate to fall back to 12, got %v", cfg.Pricing.PerExtraKm)
	}
}
