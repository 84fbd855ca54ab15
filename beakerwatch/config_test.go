package beakerwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beakerwatch.yaml")
	content := `
hub:
  url: https://beaker.example.com
  username: jenkins
  password: secret
  timeout: 15s
watch:
  delay: 5s
  period: 20s
  max_query_failures: 10
queue:
  redis_addr: redis:6379
  name: beaker
  concurrency: 3
store:
  path: /var/lib/beakerwatch/runs.db
api:
  addr: ":9090"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Hub.URL != "https://beaker.example.com" || cfg.Hub.Username != "jenkins" {
		t.Fatalf("unexpected hub config: %#v", cfg.Hub)
	}
	if time.Duration(cfg.Hub.Timeout) != 15*time.Second {
		t.Fatalf("want hub timeout 15s, got %v", time.Duration(cfg.Hub.Timeout))
	}
	wc := cfg.Watch.WatchConfig()
	if wc.Delay != 5*time.Second || wc.Period != 20*time.Second || wc.MaxQueryFailures != 10 {
		t.Fatalf("unexpected watch config: %#v", wc)
	}
	if wc.InitialStatus != StatusNew {
		t.Fatalf("want initial status %s, got %s", StatusNew, wc.InitialStatus)
	}
	if cfg.Queue.RedisAddr != "redis:6379" || cfg.Queue.Name != "beaker" || cfg.Queue.Concurrency != 3 {
		t.Fatalf("unexpected queue config: %#v", cfg.Queue)
	}
	if cfg.Store.Path != "/var/lib/beakerwatch/runs.db" || cfg.API.Addr != ":9090" {
		t.Fatalf("unexpected store/api config: %#v %#v", cfg.Store, cfg.API)
	}
}

func TestLoadConfig_DefaultsApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	if err := os.WriteFile(path, []byte("hub:\n  url: http://hub\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if time.Duration(cfg.Watch.Delay) != DefaultDelay || time.Duration(cfg.Watch.Period) != DefaultPeriod {
		t.Fatalf("defaults not applied: %#v", cfg.Watch)
	}
	if cfg.Queue.RedisAddr == "" || cfg.Store.Path == "" || cfg.API.Addr == "" {
		t.Fatalf("defaults not applied: %#v", cfg)
	}
}

func TestLoadConfig_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("watch:\n  delay: soon\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("want an error for an unparseable duration")
	}
}
