package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/joho/godotenv"

	"github.com/trapline/trapline/pkg/config"
	"github.com/trapline/trapline/pkg/intel"
)

const Version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := godotenv.Load(); err != nil {
		log.Println("○ No .env file found, using environment variables")
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		port := ""
		if len(os.Args) > 2 {
			port = os.Args[2]
		}
		runHTTPServer(port)
	case "scan":
		if len(os.Args) < 3 {
			fmt.Println("Usage: trapline scan <text>")
			os.Exit(1)
		}
		runCLIScan(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("Trapline v%s\n", Version)
		fmt.Println("Scam honeypot gateway")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Trapline v%s - Scam honeypot gateway\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  trapline serve [port]   Start HTTP server (default: 8080)")
	fmt.Println("  trapline scan <text>    Run one message through the pipeline")
	fmt.Println("  trapline version        Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  TRAPLINE_API_KEY        Inbound auth key for /honeypot")
	fmt.Println("  TRAPLINE_CALLBACK_URL   Intelligence report sink endpoint")
	fmt.Println("  TRAPLINE_LLM_PROVIDER   Provider: groq, openrouter, openai, ollama, none")
	fmt.Println("  TRAPLINE_LLM_API_KEY    API key for remote classification/extraction")
	fmt.Println("  TRAPLINE_REDIS_ADDR     Optional Redis address for session storage")
	fmt.Println("  TRAPLINE_ARCHIVE_DSN    Optional Postgres DSN for report archival")
}

// buildPipeline wires the pipeline from configuration. Every remote
// collaborator is optional and the pipeline degrades to its local
// deterministic paths when one is absent.
func buildPipeline(cfg *config.Config) (*intel.Pipeline, func()) {
	var cleanups []func()

	// Session store
	var store intel.SessionStore
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rs, err := intel.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword,
			intel.WithSessionTTL(cfg.SessionTTL))
		cancel()
		if err != nil {
			log.Fatalf("[STARTUP] FATAL: Redis session store unavailable: %v", err)
		}
		store = rs
		cleanups = append(cleanups, func() { _ = rs.Close() })
		log.Println("✓ Session store: redis")
	} else {
		store = intel.NewMemoryStore()
		log.Println("✓ Session store: in-memory (volatile)")
	}

	// Remote inference - optional
	var classifier intel.Classifier
	var extractor intel.Extractor
	if cfg.LLMEnabled() {
		opts := intel.LLMOptions{
			Provider: cfg.LLMProvider,
			APIKey:   cfg.LLMAPIKey,
			Model:    cfg.LLMModel,
			BaseURL:  cfg.LLMBaseURL,
			MaxRPS:   cfg.LLMMaxRPS,
		}
		classifier = intel.NewHybridClassifier(intel.NewLLMClassifier(opts, cfg.LLMTimeout), intel.NewRuleClassifier())
		extractor = intel.NewHybridExtractor(intel.NewLLMExtractor(opts, cfg.LLMTimeout), intel.NewPatternExtractor())
		log.Printf("✓ Remote inference enabled (provider: %s, model: %s)", cfg.LLMProvider, cfg.LLMModel)
	} else {
		classifier = intel.NewHybridClassifier(nil, intel.NewRuleClassifier())
		extractor = intel.NewHybridExtractor(nil, intel.NewPatternExtractor())
		log.Println("○ Remote inference disabled (no provider configured); rule-based paths only")
	}

	// Report archive - optional
	var archive *intel.Archive
	if cfg.ArchiveDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		a, err := intel.NewArchive(ctx, cfg.ArchiveDSN)
		cancel()
		if err != nil {
			log.Fatalf("[STARTUP] FATAL: report archive unavailable: %v", err)
		}
		archive = a
		cleanups = append(cleanups, archive.Close)
		log.Println("✓ Report archive enabled (postgres)")
	} else {
		log.Println("○ Report archive disabled (no DSN)")
	}

	// Report sink
	var sink intel.ReportSink
	if cfg.CallbackURL != "" {
		sink = intel.NewHTTPDispatcher(cfg.CallbackURL, cfg.CallbackRetries, cfg.DispatchCapacity, archive)
		log.Printf("✓ Report sink: %s", cfg.CallbackURL)
	} else {
		sink = intel.LogDispatcher{}
		log.Println("○ Report sink disabled (reports will be logged)")
	}

	// Persona
	persona := intel.NewPersona()
	if cfg.PersonaPath != "" {
		p, err := intel.LoadPersona(cfg.PersonaPath)
		if err != nil {
			log.Fatalf("[STARTUP] FATAL: persona file: %v", err)
		}
		persona = p
		log.Printf("✓ Persona loaded from %s (%s)", cfg.PersonaPath, persona.Name)
	}

	pipeline := intel.NewPipeline(intel.PipelineOptions{
		Store:      store,
		Classifier: classifier,
		Extractor:  extractor,
		Persona:    persona,
		Trigger:    intel.NewTrigger(cfg.ReportThreshold),
		Sink:       sink,
	})

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	return pipeline, cleanup
}

// ============================================================================
// HTTP Server Mode
// ============================================================================

type honeypotRequest struct {
	SessionID string `json:"sessionId"`
	Message   struct {
		Sender    string `json:"sender"`
		Text      string `json:"text"`
		Timestamp string `json:"timestamp"`
	} `json:"message"`
}

func runHTTPServer(port string) {
	cfg := config.NewDefaultConfig()
	cfg.MustValidate()
	if port == "" {
		port = cfg.Port
	}

	pipeline, cleanup := buildPipeline(cfg)
	defer cleanup()

	app := newApp(cfg, pipeline)

	log.Printf("Trapline v%s listening on :%s", Version, port)
	log.Printf("Endpoints:")
	log.Printf("  GET  /health        - Health check")
	log.Printf("  POST /honeypot      - Scam conversation endpoint")
	log.Printf("  GET  /sessions/:id  - Session state (debug)")

	if err := app.Listen(":" + port); err != nil {
		log.Fatal(err)
	}
}

// newApp assembles the HTTP surface around an already-wired pipeline.
func newApp(cfg *config.Config, pipeline *intel.Pipeline) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Trapline",
	})

	// Header auth for everything except the health check. Requests are
	// rejected here, before the pipeline is ever invoked.
	authorize := func(c fiber.Ctx) error {
		if cfg.APIKey != "" && c.Get("x-api-key") != cfg.APIKey {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid API key"})
		}
		return c.Next()
	}

	app.Get("/health", func(c fiber.Ctx) error {
		body := fiber.Map{
			"status":  "ok",
			"version": Version,
			"llm":     cfg.LLMEnabled(),
			"store":   storeKind(cfg),
		}
		// The Redis store has no cheap session count; only the memory
		// store reports one.
		if ms, ok := pipeline.Store().(*intel.MemoryStore); ok {
			body["sessions"] = ms.SessionCount()
		}
		return c.JSON(body)
	})

	app.Post("/honeypot", authorize, func(c fiber.Ctx) error {
		var req honeypotRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.SessionID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "sessionId is required"})
		}
		if req.Message.Text == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message.text is required"})
		}

		reply, err := pipeline.Process(c.Context(), req.SessionID, intel.Message{
			Sender:    req.Message.Sender,
			Text:      req.Message.Text,
			Timestamp: req.Message.Timestamp,
		})
		if err != nil {
			// Process recovers everything recoverable; this is a last resort.
			log.Printf("[HTTP] pipeline error for session %s: %v", req.SessionID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}

		return c.JSON(fiber.Map{"status": "success", "reply": reply})
	})

	// Debug surface: inspect accumulated session state.
	app.Get("/sessions/:id", authorize, func(c fiber.Ctx) error {
		session, err := pipeline.Store().Snapshot(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "session lookup failed"})
		}
		return c.JSON(session)
	})

	return app
}

func storeKind(cfg *config.Config) string {
	if cfg.RedisAddr != "" {
		return "redis"
	}
	return "memory"
}

// ============================================================================
// CLI Mode
// ============================================================================

func runCLIScan(text string) {
	cfg := config.NewDefaultConfig()
	pipeline, cleanup := buildPipeline(cfg)
	defer cleanup()

	ctx := context.Background()
	sessionID := "cli-" + time.Now().UTC().Format("20060102150405")

	reply, err := pipeline.Process(ctx, sessionID, intel.Message{
		Sender:    intel.RoleScammer,
		Text:      text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Fatal(err)
	}

	session, err := pipeline.Store().Snapshot(ctx, sessionID)
	if err != nil {
		log.Fatal(err)
	}

	output, _ := json.MarshalIndent(fiber.Map{
		"scamDetected": session.ScamDetected,
		"scamType":     session.ScamType,
		"intelligence": session.Intelligence,
		"reply":        reply,
	}, "", "  ")
	fmt.Println(string(output))
}
