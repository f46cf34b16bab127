package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"LOG_LEVEL", "WATER_CRS", "DEDUP_MODE", "RING_MODE", "REDIS_ADDR", "RESULT_CACHE_TTL", "NOTIFY_ENABLED", "WKT_CACHE_SIZE"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()

	if cfg.CRS != "4326" {
		t.Fatalf("CRS=%q want 4326", cfg.CRS)
	}
	if cfg.DatasetURLs["4326"] != DefaultURL4326 || cfg.DatasetURLs["3857"] != DefaultURL3857 {
		t.Fatalf("unexpected dataset urls: %v", cfg.DatasetURLs)
	}
	if cfg.DedupMode != "adjacent" || cfg.RingMode != "merge" {
		t.Fatalf("modes=%q/%q", cfg.DedupMode, cfg.RingMode)
	}
	if cfg.Cache.RedisAddr != "" || cfg.Cache.TTL != 24*time.Hour {
		t.Fatalf("cache cfg=%+v", cfg.Cache)
	}
	if cfg.Notify.Enabled {
		t.Fatalf("notify should default to disabled")
	}
	if cfg.WKTCacheSize != 4096 {
		t.Fatalf("WKTCacheSize=%d", cfg.WKTCacheSize)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("WATER_CRS", "3857")
	t.Setenv("WATER_URL_3857", "http://mirror.local/3857.zip")
	t.Setenv("DEDUP_MODE", "distinct")
	t.Setenv("RESULT_CACHE_TTL", "90s")
	t.Setenv("NOTIFY_ENABLED", "yes")
	t.Setenv("WKT_CACHE_SIZE", "not-a-number")

	cfg := FromEnv()
	if cfg.CRS != "3857" || cfg.DatasetURLs["3857"] != "http://mirror.local/3857.zip" {
		t.Fatalf("unexpected crs config: %q %v", cfg.CRS, cfg.DatasetURLs)
	}
	if cfg.DedupMode != "distinct" {
		t.Fatalf("DedupMode=%q", cfg.DedupMode)
	}
	if cfg.Cache.TTL != 90*time.Second {
		t.Fatalf("TTL=%v", cfg.Cache.TTL)
	}
	if !cfg.Notify.Enabled {
		t.Fatalf("notify should be enabled")
	}
	if cfg.WKTCacheSize != 4096 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.WKTCacheSize)
	}
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("KAFKA_TOPIC=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KAFKA_TOPIC", "")
	os.Unsetenv("KAFKA_TOPIC")

	cfg := Load(path)
	if cfg.Notify.Topic != "from-file" {
		t.Fatalf("Topic=%q want from-file", cfg.Notify.Topic)
	}
	os.Unsetenv("KAFKA_TOPIC")
}
