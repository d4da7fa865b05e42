package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "darzi-dev",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "darzi-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Orders.Currency != "INR" {
		t.Errorf("expected default currency INR, got %s", cfg.Orders.Currency)
	}
	if cfg.Orders.RevenueTrendDays != 30 {
		t.Errorf("expected default trend window of 30 days, got %d", cfg.Orders.RevenueTrendDays)
	}
	if cfg.RateLimits.DefaultPerMinute != 120 {
		t.Errorf("unexpected default rate limit: %d", cfg.RateLimits.DefaultPerMinute)
	}
	if cfg.Razorpay.Enabled() {
		t.Errorf("expected gateway disabled without credentials")
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":               "9090",
		"API_SERVER_READ_TIMEOUT":       "20s",
		"API_SERVER_WRITE_TIMEOUT":      "25s",
		"API_SERVER_IDLE_TIMEOUT":       "2m",
		"API_FIREBASE_PROJECT_ID":       "darzi-prod",
		"API_FIRESTORE_PROJECT_ID":      "darzi-fire",
		"API_RAZORPAY_KEY_ID":           "rzp_test_123",
		"API_RAZORPAY_KEY_SECRET":       "rzp-secret",
		"API_ORDERS_CURRENCY":           "inr",
		"API_DASHBOARD_TREND_DAYS":      "14",
		"API_RATELIMIT_DEFAULT_PER_MIN": "150",
		"API_RATELIMIT_AUTH_PER_MIN":    "300",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("unexpected port: %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firestore.ProjectID != "darzi-fire" {
		t.Errorf("expected explicit firestore project, got %s", cfg.Firestore.ProjectID)
	}
	if !cfg.Razorpay.Enabled() {
		t.Fatalf("expected gateway enabled")
	}
	if cfg.Razorpay.KeyID != "rzp_test_123" {
		t.Errorf("unexpected key id: %s", cfg.Razorpay.KeyID)
	}
	if cfg.Orders.Currency != "INR" {
		t.Errorf("expected currency upper-cased, got %s", cfg.Orders.Currency)
	}
	if cfg.Orders.RevenueTrendDays != 14 {
		t.Errorf("unexpected trend window: %d", cfg.Orders.RevenueTrendDays)
	}
	if cfg.RateLimits.AuthenticatedPerMinute != 300 {
		t.Errorf("unexpected auth rate limit: %d", cfg.RateLimits.AuthenticatedPerMinute)
	}
}

func TestLoadMissingProjectID(t *testing.T) {
	_, err := Load(WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	fields := validation.Fields()
	found := false
	for _, field := range fields {
		if field == "Firebase.ProjectID" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Firebase.ProjectID in missing fields, got %v", fields)
	}
}

func TestLoadMismatchedGatewayCredentials(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "darzi-dev",
		"API_RAZORPAY_KEY_ID":     "rzp_test_123",
	}

	_, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatalf("expected validation error for key without secret")
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "# local overrides\nAPI_FIREBASE_PROJECT_ID=darzi-local\nexport API_SERVER_PORT=7001\nAPI_ORDERS_CURRENCY=\"usd\"\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(WithoutSystemEnv(), WithEnvFile(envFile))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Firebase.ProjectID != "darzi-local" {
		t.Errorf("expected project from .env, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != "7001" {
		t.Errorf("expected port from .env, got %s", cfg.Server.Port)
	}
	if cfg.Orders.Currency != "USD" {
		t.Errorf("expected quoted currency parsed and upper-cased, got %s", cfg.Orders.Currency)
	}
}

func TestEnvMapTakesPrecedenceOverDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("API_FIREBASE_PROJECT_ID=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(
		WithEnvMap(map[string]string{"API_FIREBASE_PROJECT_ID": "from-map"}),
		WithoutSystemEnv(),
		WithEnvFile(envFile),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Firebase.ProjectID != "from-map" {
		t.Errorf("expected env map to win, got %s", cfg.Firebase.ProjectID)
	}
}
