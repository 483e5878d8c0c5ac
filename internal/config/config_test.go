package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

// inTempDir runs the test from an empty directory so config/ lookups are isolated.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func writeConfig(t *testing.T, dir, env, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "config."+env+".yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testFlags(args ...string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config-env", "", "")
	fs.Int("port", 8080, "")
	fs.String("log-level", "info", "")
	_ = fs.Parse(args)
	return fs
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	inTempDir(t)
	t.Setenv("CONFIG_ENV", "")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Mode != "release" || cfg.StaticPath != "./web" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.PingPeriod != 54*time.Second || cfg.PongWait != 60*time.Second {
		t.Errorf("ping=%s pong=%s", cfg.PingPeriod, cfg.PongWait)
	}
	if cfg.MaxConnections != 0 || cfg.Redis.Enabled || cfg.MDNS.Enabled {
		t.Errorf("optional features on by default: %+v", cfg)
	}
	if cfg.Redis.KeyPrefix != "voicestream" || cfg.MDNS.Service != "_voice-streaming._tcp" {
		t.Errorf("redis=%+v mdns=%+v", cfg.Redis, cfg.MDNS)
	}
}

func TestLoad_FileAndFlags(t *testing.T) {
	dir := inTempDir(t)
	writeConfig(t, dir, "test", `
mode: debug
port: 9000
max_connections: 10
allowed_origins: ["http://localhost:3000"]
webrtc:
  ice_servers:
    - urls: ["turn:turn.example.org:3478"]
      username: u
      credential: p
  gather_timeout: 3s
`)

	cfg, err := Load(testFlags("--config-env=test", "--log-level=debug"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "debug" || cfg.Port != 9000 || cfg.MaxConnections != 10 {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("origins = %v", cfg.AllowedOrigins)
	}
	if len(cfg.WebRTC.ICEServers) != 1 || cfg.WebRTC.ICEServers[0].Credential != "p" {
		t.Errorf("ice = %+v", cfg.WebRTC.ICEServers)
	}
	if cfg.WebRTC.GatherTimeout != 3*time.Second {
		t.Errorf("gather_timeout = %s", cfg.WebRTC.GatherTimeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %s", cfg.Log.Level)
	}

	cfg, err = Load(testFlags("--config-env=test", "--port=9100"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("flag did not override port: %d", cfg.Port)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	dir := inTempDir(t)
	writeConfig(t, dir, "bad", "ping_period: 90s\npong_wait: 60s\n")

	if _, err := Load(testFlags("--config-env=bad")); err == nil {
		t.Error("ping_period above pong_wait accepted")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	inTempDir(t)
	t.Setenv("CONFIG_ENV", "")
	t.Setenv("VOICESTREAM_REDIS_ENABLED", "true")
	t.Setenv("VOICESTREAM_MAX_CONNECTIONS", "5")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Redis.Enabled || cfg.MaxConnections != 5 {
		t.Errorf("redis=%v max=%d", cfg.Redis.Enabled, cfg.MaxConnections)
	}
}
