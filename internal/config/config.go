// Package config loads process configuration from the environment (optionally seeded from a .env file).
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Env holds every setting the server reads at startup.
type Env struct {
	Port           string
	CORSOrigins    []string
	TrustedProxies []string
	RateLimitRPM   int

	LedgerDriver      string
	LedgerDSN         string
	LedgerAutoMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ClaimLockTTL  time.Duration

	NatsURL string

	OTelEnabled  bool
	OTelEndpoint string

	Eligibility Remote
	Dadata      Remote

	SMTP SMTP

	FontRegularPath string
	FontBoldPath    string
	EmblemPath      string
	ArchiveEnabled  bool
	MaskCardNumbers bool

	BreakerThreshold int
	BreakerOpenFor   time.Duration

	LogLevel  string
	LogFormat string
}

// Remote describes an outbound HTTP collaborator.
type Remote struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// SMTP describes the outbound mail relay and the fixed recipient set.
type SMTP struct {
	Host        string
	Port        string
	User        string
	Pass        string
	From        string
	Timeout     time.Duration
	ImplicitTLS bool
	Recipients  []string
}

// Configured reports whether enough is set to attempt delivery.
func (s SMTP) Configured() bool {
	return s.Host != "" && s.Port != "" && s.From != "" && len(s.Recipients) > 0
}

// Load reads .env (if present) and the process environment.
func Load() Env {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Println("Warning: Could not load .env file:", err)
	}

	smtpPort := get("SMTP_PORT", "465")
	e := Env{
		Port:           firstNonEmpty(os.Getenv("PORT"), "3001"),
		CORSOrigins:    list(firstNonEmpty(os.Getenv("CORS_ORIGINS"), os.Getenv("CLIENT_URL"), "http://localhost:3000")),
		TrustedProxies: list(os.Getenv("TRUSTED_PROXIES")),
		RateLimitRPM:   getInt("RATE_LIMIT_RPM", 60),

		LedgerDriver:      get("LEDGER_DRIVER", "sqlite3"),
		LedgerDSN:         get("LEDGER_DSN", "data/claims.db"),
		LedgerAutoMigrate: getBool("LEDGER_AUTO_MIGRATE", true),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		ClaimLockTTL:  time.Duration(getInt("CLAIM_LOCK_TTL_SECONDS", 10)) * time.Second,

		NatsURL: os.Getenv("NATS_URL"),

		OTelEnabled:  getBool("OTEL_ENABLE", false) || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "",
		OTelEndpoint: get("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),

		Eligibility: Remote{
			BaseURL: strings.TrimRight(get("ELIGIBILITY_BASE_URL", "https://pvz-track-ext-stage.wildberries.ru"), "/"),
			Token:   os.Getenv("ELIGIBILITY_API_KEY"),
			Timeout: ms("ELIGIBILITY_TIMEOUT_MS", 5000),
		},
		Dadata: Remote{
			BaseURL: strings.TrimRight(get("DADATA_BASE_URL", "https://suggestions.dadata.ru"), "/"),
			Token:   os.Getenv("DADATA_TOKEN"),
			Timeout: ms("DADATA_TIMEOUT_MS", 3000),
		},

		SMTP: SMTP{
			Host:        os.Getenv("SMTP_HOST"),
			Port:        smtpPort,
			User:        os.Getenv("SMTP_USER"),
			Pass:        os.Getenv("SMTP_PASS"),
			From:        os.Getenv("SMTP_FROM"),
			Timeout:     ms("SMTP_TIMEOUT_MS", 10000),
			ImplicitTLS: getBool("SMTP_IMPLICIT_TLS", smtpPort == "465"),
			Recipients:  list(os.Getenv("CLAIM_RECIPIENTS")),
		},

		FontRegularPath: get("FONT_REGULAR_PATH", "assets/fonts/Times New Roman.ttf"),
		FontBoldPath:    get("FONT_BOLD_PATH", "assets/fonts/Times New Roman Bold.ttf"),
		EmblemPath:      get("EMBLEM_PATH", "assets/images/herb.png"),
		ArchiveEnabled:  getBool("ARCHIVE_ENABLED", true),
		MaskCardNumbers: getBool("MASK_CARD_NUMBERS", true),

		BreakerThreshold: getInt("CB_THRESHOLD", 3),
		BreakerOpenFor:   time.Duration(getInt("CB_OPEN_SECONDS", 30)) * time.Second,

		LogLevel:  get("LOG_LEVEL", "info"),
		LogFormat: get("LOG_FORMAT", "json"),
	}
	return e
}

func get(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func ms(k string, def int) time.Duration {
	n := getInt(k, def)
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Millisecond
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// list splits a comma-separated value, dropping blanks.
func list(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
