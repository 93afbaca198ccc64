package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
wallet:
  private_key: "aabbcc"
  chain_id: 4162
api:
  base_url: "https://api.example.test"
  ws_url: "wss://api.example.test/ws"
`

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Trading.CompleteFraction != 0.99 {
		t.Errorf("completeFraction = %v, want 0.99", cfg.Trading.CompleteFraction)
	}
	if cfg.Trading.MinOrderUpdateInterval != 2500*time.Millisecond {
		t.Errorf("minOrderUpdateInterval = %v", cfg.Trading.MinOrderUpdateInterval)
	}
	if cfg.Trading.PollFallbackInterval != 10*time.Second {
		t.Errorf("pollFallbackInterval = %v", cfg.Trading.PollFallbackInterval)
	}
	if cfg.Operator.Port != 8080 {
		t.Errorf("operator port = %d, want 8080", cfg.Operator.Port)
	}

	oddsUnit, ladderStep, stakeUnit, err := cfg.Venue.Constants()
	if err != nil {
		t.Fatalf("Constants: %v", err)
	}
	if oddsUnit.String() != "100000000000000000000" {
		t.Errorf("oddsUnit = %s", oddsUnit)
	}
	if ladderStep.String() != "250000000000000000" {
		t.Errorf("ladderStep = %s", ladderStep)
	}
	if stakeUnit.String() != "1000000000000000000" {
		t.Errorf("stakeUnit = %s", stakeUnit)
	}
}

func TestLoadEnvOverridesSecrets(t *testing.T) {
	t.Setenv("SX_PRIVATE_KEY", "deadbeef")
	t.Setenv("SX_API_KEY", "env-key")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Wallet.PrivateKey != "deadbeef" {
		t.Errorf("privateKey = %q, want env override", cfg.Wallet.PrivateKey)
	}
	if cfg.API.ApiKey != "env-key" {
		t.Errorf("apiKey = %q, want env override", cfg.API.ApiKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	broken := *cfg
	broken.Wallet.PrivateKey = ""
	if err := broken.Validate(); err == nil {
		t.Error("missing private key accepted")
	}

	broken = *cfg
	broken.API.WSURL = ""
	if err := broken.Validate(); err == nil {
		t.Error("missing ws url accepted")
	}

	broken = *cfg
	broken.Venue.OddsUnit = "zero"
	if err := broken.Validate(); err == nil {
		t.Error("malformed odds unit accepted")
	}

	broken = *cfg
	broken.Trading.CompleteFraction = 1.5
	if err := broken.Validate(); err == nil {
		t.Error("complete fraction above 1 accepted")
	}

	broken = *cfg
	broken.Trading.RetryBackoff = 0.5
	if err := broken.Validate(); err == nil {
		t.Error("retry backoff below 1 accepted")
	}
}
