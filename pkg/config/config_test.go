package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `environment: test
server:
  port: 8080
  read_timeout: 10s
  write_timeout: 15s
  shutdown_timeout: 5s
deriv:
  endpoint: wss://ws.derivws.com/websockets/v3
  app_ids: [1089, 16929]
  request_timeout: 10s
stake:
  base_stake: 1.0
  martingale_multiplier: 2.0
  max_martingale_steps: 5
  take_profit_limit: 100.0
  stop_loss_limit: -50.0
auto_trader:
  risk_mode: NORMAL
  delay_between_trades: 2s
store:
  type: memory
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesDurationsAndLists(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Fatalf("read timeout = %v, want 10s", cfg.Server.ReadTimeout)
	}
	if len(cfg.Deriv.AppIDs) != 2 || cfg.Deriv.AppIDs[0] != 1089 {
		t.Fatalf("app ids = %v", cfg.Deriv.AppIDs)
	}
	if cfg.AutoTrader.DelayBetweenTrades != 2*time.Second {
		t.Fatalf("delay = %v, want 2s", cfg.AutoTrader.DelayBetweenTrades)
	}
}

func TestValidateRejectsBadRiskMode(t *testing.T) {
	bad := sampleYAML + "\n"
	cfg, err := Load(writeConfig(t, bad))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.AutoTrader.RiskMode = "YOLO"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected risk mode validation error")
	}
}

func TestValidateRequiresBrokersWhenKafkaEnabled(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Kafka.Enabled = true
	cfg.Kafka.Brokers = nil
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected kafka brokers validation error")
	}
}

func TestEnvOverridesToken(t *testing.T) {
	t.Setenv("DERIV_API_TOKEN", "tok-123")
	t.Setenv("DERIV_APP_IDS", "101,202")
	cfg, err := LoadWithEnv(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load with env: %v", err)
	}
	if cfg.Deriv.APIToken != "tok-123" {
		t.Fatalf("token = %q", cfg.Deriv.APIToken)
	}
	if len(cfg.Deriv.AppIDs) != 2 || cfg.Deriv.AppIDs[1] != 202 {
		t.Fatalf("app ids = %v", cfg.Deriv.AppIDs)
	}
}
