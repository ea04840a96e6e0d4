package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthHMACSecret string
	TokenTTL       time.Duration
	EnableSignup   bool

	// Bootstrap admin, upserted at startup when AdminPassHash is set.
	AdminEmail    string
	AdminName     string
	AdminPassHash string // bcrypt

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	RedisAddr string // empty: in-process token revocation

	SweepInterval time.Duration
	SubmitGrace   time.Duration
}

// Load reads .env (if present) and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env ignored: %v", err)
	}
	return FromEnv()
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           addr,
		DBDriver:           envOr("DB_DRIVER", "sqlite"),
		DBDSN:              envOr("DB_DSN", ""),
		AuthHMACSecret:     envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		TokenTTL:           envDuration("TOKEN_TTL", 8*time.Hour),
		EnableSignup:       envBool("ENABLE_SIGNUP", true),
		AdminEmail:         strings.ToLower(envOr("ADMIN_EMAIL", "admin@quiz.local")),
		AdminName:          envOr("ADMIN_NAME", "Administrator"),
		AdminPassHash:      envOr("ADMIN_PASS_HASH", ""),
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://quiz.mindengage.ai"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:5173"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		SweepInterval:      envDuration("SWEEP_INTERVAL", 30*time.Second),
		SubmitGrace:        envDuration("SUBMIT_GRACE", 15*time.Second),
	}
}

// CORSOrigins picks the origin list for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("config: bad %s=%q, using %s", k, v, def)
		return def
	}
	return d
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
