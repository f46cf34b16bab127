package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultCRS     = "4326"
	DefaultURL4326 = "https://osmdata.openstreetmap.de/download/water-polygons-split-4326.zip"
	DefaultURL3857 = "https://osmdata.openstreetmap.de/download/water-polygons-split-3857.zip"
)

type CacheCfg struct {
	RedisAddr string
	TTL       time.Duration
}

type NotifyCfg struct {
	Enabled bool
	Brokers string
	Topic   string
}

type Config struct {
	LogLevel     string
	LogConsole   bool
	CRS          string
	DatasetURLs  map[string]string
	DedupMode    string
	RingMode     string
	WKTCacheSize int
	MetricsFile  string
	Cache        CacheCfg
	Notify       NotifyCfg
}

// Load reads optional .env files and then the environment.
func Load(envFiles ...string) Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// missing files are fine; variables already set win
		_ = godotenv.Load(f)
	}
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		CRS:        getenv("WATER_CRS", DefaultCRS),
		DatasetURLs: map[string]string{
			"4326": getenv("WATER_URL_4326", DefaultURL4326),
			"3857": getenv("WATER_URL_3857", DefaultURL3857),
		},
		DedupMode:    getenv("DEDUP_MODE", "adjacent"),
		RingMode:     getenv("RING_MODE", "merge"),
		WKTCacheSize: getint("WKT_CACHE_SIZE", 4096),
		MetricsFile:  getenv("METRICS_FILE", ""),
		Cache: CacheCfg{
			RedisAddr: getenv("REDIS_ADDR", ""),
			TTL:       getduration("RESULT_CACHE_TTL", 24*time.Hour),
		},
		Notify: NotifyCfg{
			Enabled: getbool("NOTIFY_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "water-intersect-runs"),
		},
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
