package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLMProvider defines the backend inference service type
type LLMProvider string

const (
	ProviderNone       LLMProvider = "none"       // No LLM, rule-based only
	ProviderGroq       LLMProvider = "groq"       // Groq (high-speed inference)
	ProviderOpenRouter LLMProvider = "openrouter" // OpenRouter (free tier available)
	ProviderOpenAI     LLMProvider = "openai"     // Direct OpenAI API
	ProviderOllama     LLMProvider = "ollama"     // Local Ollama server
	ProviderCustom     LLMProvider = "custom"     // Custom OpenAI-compatible endpoint
)

// Config holds global settings for the Trapline gateway.
// All settings can be configured via environment variables or programmatically.
type Config struct {
	// === Core Settings ===
	APIKey string // Inbound auth key for the honeypot endpoint (env: TRAPLINE_API_KEY)
	Port   string // HTTP listen port (env: PORT)

	// === LLM Provider Configuration ===
	// Controls the remote half of the hybrid classifier/extractor.
	// The rule-based fallback always remains available.
	LLMProvider LLMProvider // Which service to use (env: TRAPLINE_LLM_PROVIDER)
	LLMAPIKey   string      // API key for cloud providers
	LLMModel    string      // Model identifier (e.g. "llama-3.1-8b-instant")
	LLMBaseURL  string      // Custom base URL for self-hosted providers
	LLMTimeout  time.Duration
	LLMMaxRPS   float64 // Rate cap on outbound inference calls (0 = unlimited)

	// === Reporting ===
	CallbackURL      string // Intelligence report sink endpoint
	CallbackRetries  int    // Extra dispatch attempts after the first failure
	ReportThreshold  int    // Message count that triggers a report
	ArchiveDSN       string // Optional Postgres DSN for report archival
	DispatchCapacity int    // Max in-flight dispatch goroutines

	// === Session Storage ===
	RedisAddr     string        // Optional Redis address; empty = in-memory store
	RedisPassword string        //
	SessionTTL    time.Duration // Redis key TTL (0 = no expiry; memory store never evicts)

	// === Persona ===
	PersonaPath string // Optional YAML reply-bank override
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		APIKey: GetEnv("TRAPLINE_API_KEY", ""),
		Port:   GetEnv("PORT", "8080"),

		LLMProvider: detectLLMProvider(),
		LLMAPIKey:   GetEnv("TRAPLINE_LLM_API_KEY", GetEnv("GROQ_API_KEY", os.Getenv("OPENROUTER_API_KEY"))),
		LLMModel:    GetEnv("TRAPLINE_LLM_MODEL", "llama-3.1-8b-instant"),
		LLMBaseURL:  GetEnv("TRAPLINE_LLM_BASE_URL", ""),
		LLMTimeout:  time.Duration(GetEnvInt("TRAPLINE_LLM_TIMEOUT_MS", 3000)) * time.Millisecond,
		LLMMaxRPS:   GetEnvFloat("TRAPLINE_LLM_MAX_RPS", 10),

		CallbackURL:      GetEnv("TRAPLINE_CALLBACK_URL", ""),
		CallbackRetries:  clampInt(GetEnvInt("TRAPLINE_CALLBACK_RETRIES", 2), 0, 5),
		ReportThreshold:  clampInt(GetEnvInt("TRAPLINE_REPORT_THRESHOLD", 10), 1, 1000),
		ArchiveDSN:       GetEnv("TRAPLINE_ARCHIVE_DSN", ""),
		DispatchCapacity: clampInt(GetEnvInt("TRAPLINE_DISPATCH_CAPACITY", 64), 1, 4096),

		RedisAddr:     GetEnv("TRAPLINE_REDIS_ADDR", ""),
		RedisPassword: GetEnv("TRAPLINE_REDIS_PASSWORD", ""),
		SessionTTL:    time.Duration(GetEnvInt("TRAPLINE_SESSION_TTL_SECONDS", 0)) * time.Second,

		PersonaPath: GetEnv("TRAPLINE_PERSONA_PATH", ""),
	}
}

func detectLLMProvider() LLMProvider {
	// Check explicit provider setting first
	if p := os.Getenv("TRAPLINE_LLM_PROVIDER"); p != "" {
		return LLMProvider(p)
	}
	// Auto-detect based on available keys
	if os.Getenv("GROQ_API_KEY") != "" {
		return ProviderGroq
	}
	if os.Getenv("OPENROUTER_API_KEY") != "" || os.Getenv("TRAPLINE_LLM_API_KEY") != "" {
		return ProviderOpenRouter
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return ProviderOpenAI
	}
	// No keys at all: the rule-based fallback carries the pipeline alone
	return ProviderNone
}

// LLMEnabled reports whether the remote inference path should be constructed.
func (c *Config) LLMEnabled() bool {
	if c.LLMProvider == ProviderNone {
		return false
	}
	// Ollama needs no key; every cloud provider does
	return c.LLMProvider == ProviderOllama || c.LLMAPIKey != ""
}

// clampInt ensures a value is within bounds
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// RequiredSecret defines a required environment variable for startup validation
type RequiredSecret struct {
	Name        string // Environment variable name
	Description string // Human-readable description
	Production  bool   // Required in production only (false = required always)
}

// CriticalSecrets returns the list of secrets required for the gateway to operate
func CriticalSecrets() []RequiredSecret {
	return []RequiredSecret{
		{Name: "TRAPLINE_API_KEY", Description: "API key for honeypot endpoint authentication", Production: true},
		{Name: "TRAPLINE_CALLBACK_URL", Description: "intelligence report sink endpoint", Production: true},
	}
}

// Validate checks that all required configuration is present.
// In production mode, this returns an error if critical secrets are missing.
// In development mode, it logs warnings but allows startup for local testing.
func (c *Config) Validate() error {
	env := strings.ToLower(os.Getenv("TRAPLINE_ENV"))
	isProduction := env == "production" || env == "prod"

	var missing []string
	for _, secret := range CriticalSecrets() {
		if os.Getenv(secret.Name) != "" {
			continue
		}
		if secret.Production && !isProduction {
			log.Printf("[STARTUP] Warning: Missing optional secret: %s (%s)", secret.Name, secret.Description)
			continue
		}
		missing = append(missing, secret.Name+" ("+secret.Description+")")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required secrets: %s", strings.Join(missing, ", "))
	}
	return nil
}

// MustValidate calls Validate and fatally exits if validation fails.
// Call this at startup before starting the server.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: Configuration validation failed: %v", err)
	}
	log.Println("[STARTUP] Configuration validated successfully")
}

// Helper functions for environment variable parsing
// These are exported for use by other packages (e.g., pkg/intel)

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
