package config_test

import (
	"testing"
	"time"

	"github.com/tablefront/pos/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_BACKEND", "TAX_RATE", "BILL_PRICING", "DEFAULT_CURRENCY", "CATALOG_API_TIMEOUT", "CORS_ORIGINS", "MEDIA_URL"} {
		t.Setenv(k, "")
	}

	cfg := config.Load()

	if cfg.Port != "8081" {
		t.Errorf("port: got %q, want 8081", cfg.Port)
	}
	if cfg.StoreBackend != config.BackendSQLite {
		t.Errorf("backend: got %q, want %q", cfg.StoreBackend, config.BackendSQLite)
	}
	if cfg.TaxRate.String() != "0.1" {
		t.Errorf("tax rate: got %s, want 0.1", cfg.TaxRate)
	}
	if cfg.BillPricing != "snapshot" {
		t.Errorf("bill pricing: got %q", cfg.BillPricing)
	}
	if cfg.DefaultCurrency != "INR" {
		t.Errorf("currency: got %q", cfg.DefaultCurrency)
	}
	if cfg.CatalogAPITimeout != 10*time.Second {
		t.Errorf("timeout: got %s", cfg.CatalogAPITimeout)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("cors origins: got %v", cfg.CORSOrigins)
	}
	if cfg.MediaURL != "/media" {
		t.Errorf("media url: got %q", cfg.MediaURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("TAX_RATE", "0.05")
	t.Setenv("DEFAULT_CURRENCY", "usd")
	t.Setenv("CATALOG_API_TIMEOUT", "3s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")

	cfg := config.Load()

	if cfg.StoreBackend != config.BackendPostgres {
		t.Errorf("backend: got %q", cfg.StoreBackend)
	}
	if cfg.TaxRate.String() != "0.05" {
		t.Errorf("tax rate: got %s", cfg.TaxRate)
	}
	if cfg.DefaultCurrency != "USD" {
		t.Errorf("currency: got %q", cfg.DefaultCurrency)
	}
	if cfg.CatalogAPITimeout != 3*time.Second {
		t.Errorf("timeout: got %s", cfg.CatalogAPITimeout)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins: got %v", cfg.CORSOrigins)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TAX_RATE", "-1")
	t.Setenv("CATALOG_API_TIMEOUT", "soon")

	cfg := config.Load()

	if cfg.TaxRate.String() != "0.1" {
		t.Errorf("tax rate: got %s, want fallback 0.1", cfg.TaxRate)
	}
	if cfg.CatalogAPITimeout != 10*time.Second {
		t.Errorf("timeout: got %s, want fallback", cfg.CatalogAPITimeout)
	}
}
