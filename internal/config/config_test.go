package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDriver != DriverSQLite {
		t.Fatalf("expected sqlite default, got %s", cfg.DBDriver)
	}
	if !cfg.AtomicDetections {
		t.Fatalf("expected atomic detections on by default")
	}
	if cfg.SingleActiveSession {
		t.Fatalf("expected single active session check off by default")
	}
	if cfg.ClassifierTimeout != 5*time.Second {
		t.Fatalf("unexpected classifier timeout %v", cfg.ClassifierTimeout)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  http_port: "9100"
classifier:
  addr: "inference:9000"
  timeout: "2s"
database:
  driver: postgres
  host: db
ledger:
  atomic_detections: false
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DB_HOST", "db-override")
	t.Setenv("LEDGER_SINGLE_ACTIVE_SESSION", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPPort != "9100" || cfg.ClassifierAddr != "inference:9000" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.ClassifierTimeout != 2*time.Second {
		t.Fatalf("expected 2s timeout, got %v", cfg.ClassifierTimeout)
	}
	if cfg.DBDriver != DriverPostgres || cfg.DBHost != "db-override" {
		t.Fatalf("env should override file: driver=%s host=%s", cfg.DBDriver, cfg.DBHost)
	}
	if cfg.AtomicDetections || !cfg.SingleActiveSession {
		t.Fatalf("ledger flags not applied: atomic=%v single=%v", cfg.AtomicDetections, cfg.SingleActiveSession)
	}
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DB_DRIVER", "mysql")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestDSNForLogMasksPassword(t *testing.T) {
	cfg := &Config{DBDriver: DriverPostgres, DBHost: "h", DBPort: "5432", DBUser: "u", DBPassword: "secret", DBName: "d", DBSSLMode: "disable"}
	if got := cfg.DSNForLog(); got != "host=h port=5432 user=u password=*** dbname=d sslmode=disable" {
		t.Fatalf("unexpected dsn: %s", got)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}
