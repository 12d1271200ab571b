package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultGenerationPrompt = "A grainy, accidental iPhone front-camera selfie taken at the Lakers home arena right after a game ended. The photo is blurry, poorly framed with no clear subject, and slightly overexposed due to harsh, uneven lighting. It captures a chaotic, mundane moment of crowds leaving, looking exactly like a mistake shot taken while pulling the phone from a pocket. Raw, low-quality, unedited aesthetic."
	DefaultPairPrompt       = "Combine the people from both photos into a single grainy, accidental iPhone front-camera selfie taken together at the Lakers home arena right after a game ended. Blurry, poorly framed, slightly overexposed under harsh arena lighting, crowds leaving in the background. Raw, low-quality, unedited aesthetic."
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	UpstreamModel      string
	UpstreamDialect    string
	GenerationPrompt   string
	PairPrompt         string
	InlineImages       bool
	ChatKeepAlive      bool
	UpstreamTimeout    time.Duration
	FetchTimeout       time.Duration
	ProxyAllowPrivate  bool
	ProxyCacheEntries  int
	CORSAllowedOrigins []string
	TrustedCDNPrefixes []string
	JobStatusHosts     []string
	MaxRequestBytes    int64
	MaxResponseBytes   int64
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		OpenAIAPIKey:       strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:      strings.TrimRight(getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
		UpstreamModel:      getEnv("UPSTREAM_MODEL", "gpt-4o-image"),
		UpstreamDialect:    strings.ToLower(getEnv("UPSTREAM_DIALECT", "embedded")),
		GenerationPrompt:   getEnv("GENERATION_PROMPT", DefaultGenerationPrompt),
		PairPrompt:         getEnv("PAIR_PROMPT", DefaultPairPrompt),
		InlineImages:       getEnvBool("INLINE_IMAGES", false),
		ChatKeepAlive:      getEnvBool("CHAT_KEEPALIVE", false),
		UpstreamTimeout:    time.Second * time.Duration(getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 120)),
		FetchTimeout:       time.Second * time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 30)),
		ProxyAllowPrivate:  getEnvBool("PROXY_ALLOW_PRIVATE", false),
		ProxyCacheEntries:  getEnvInt("PROXY_CACHE_ENTRIES", 128),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		TrustedCDNPrefixes: getEnvList("TRUSTED_CDN_PREFIXES"),
		JobStatusHosts:     getEnvList("JOB_STATUS_HOSTS"),
		MaxRequestBytes:    int64(getEnvInt("MAX_REQUEST_BYTES", 16<<20)),
		MaxResponseBytes:   int64(getEnvInt("UPSTREAM_MAX_RESPONSE_BYTES", 32<<20)),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 160)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	switch cfg.UpstreamDialect {
	case "passthrough", "embedded", "twostep":
	default:
		return nil, fmt.Errorf("UPSTREAM_DIALECT %q is not one of passthrough, embedded, twostep", cfg.UpstreamDialect)
	}

	// The write deadline covers the generation deadline: the upstream call
	// plus the follow-up fetches.
	if deadline := cfg.UpstreamTimeout + cfg.FetchTimeout; cfg.HTTPWriteTimeout <= deadline {
		cfg.HTTPWriteTimeout = deadline + 5*time.Second
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := strings.Split(os.Getenv(key), ",")
	items := lo.Map(raw, func(item string, _ int) string { return strings.TrimSpace(item) })
	return lo.Uniq(lo.Compact(items))
}
