package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/channelauth"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/classifier"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/compliance"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/config"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/gateway"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/leakage"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/memory"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/policy"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/redaction"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/session"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/storage"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/tee"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/telemetry"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/webchat"
)

func main() {
	configPath := flag.String("config", "configs/safeclaw.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("starting SafeClaw gateway",
		"listen", cfg.Listen,
		"session_store", cfg.Session.Store,
		"tee_enabled", cfg.Tee.Enabled,
	)

	redactor, err := redaction.NewFromConfig(cfg.Redaction)
	if err != nil {
		slog.Error("failed to build redactor", "error", err)
		os.Exit(1)
	}

	var sqliteStore *storage.SQLiteStore
	if cfg.Storage.Enabled {
		dataDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			slog.Error("failed to create data directory", "error", err, "path", dataDir)
			os.Exit(1)
		}
		sqliteStore, err = storage.NewSQLiteStore(cfg.Storage.Path, redactor)
		if err != nil {
			slog.Error("failed to initialize SQLite storage", "error", err)
			os.Exit(1)
		}
		defer sqliteStore.Close()
		slog.Info("sqlite storage enabled", "path", cfg.Storage.Path, "retention_days", cfg.Storage.RetentionDays)
	}

	var tp *telemetry.Provider
	if cfg.Telemetry.Enabled {
		tp, err = telemetry.NewProvider(cfg.Telemetry)
		if err != nil {
			slog.Warn("telemetry initialization failed, continuing without tracing", "error", err)
			tp = telemetry.NoopProvider()
		} else {
			slog.Info("telemetry enabled", "exporter", cfg.Telemetry.Exporter, "endpoint", cfg.Telemetry.Endpoint)
		}
	} else {
		tp = telemetry.NoopProvider()
	}

	var sessionStore session.Store
	var redisStore *session.RedisStore
	switch cfg.Session.Store {
	case "redis":
		redisStore, err = session.NewRedisStore(session.RedisConfig{
			Addr:      cfg.Session.Redis.Addr,
			Password:  cfg.Session.Redis.Password,
			DB:        cfg.Session.Redis.DB,
			KeyPrefix: cfg.Session.Redis.KeyPrefix,
		}, cfg.Session.IdleTimeout)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		sessionStore = redisStore
		defer redisStore.Close()
		slog.Info("using redis session store", "addr", cfg.Session.Redis.Addr)
	default:
		sessionStore = session.NewMemoryStore()
		slog.Info("using in-memory session store")
	}

	auditLog := leakage.NewAuditLog(1000)
	auditBus := leakage.NewAuditEventBus(64, auditLog, sqliteStore)

	injectionDetector := leakage.NewInjectionDetector()
	if !cfg.Leakage.InjectionEnabled {
		injectionDetector = nil
	}

	orchestrator := tee.NewTeeOrchestrator(cfg.Tee)

	manager := session.NewManager(sessionStore, cfg.Tee, orchestrator, injectionDetector, auditBus, cfg.Session.IdleTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.Run(ctx, time.Now)

	if cfg.Leakage.Drift.Enabled {
		baseline := leakage.NewPolicySnapshot(cfg.Tee.Enabled, "standard", len(cfg.Policy.TypeRules), true, enabledChannelNames(cfg), true)
		driftDetector := leakage.NewDriftDetector(baseline, auditBus, cfg.Leakage.Drift)
		go driftDetector.RunBackgroundChecks(ctx, func() leakage.PolicySnapshot { return baseline }, time.Now)
	}

	frameworks, err := cfg.Frameworks()
	if err != nil {
		slog.Error("failed to resolve compliance frameworks", "error", err)
		os.Exit(1)
	}
	complianceEngine, err := compliance.WithFrameworks(frameworks, logger)
	if err != nil {
		slog.Error("failed to build compliance engine", "error", err)
		os.Exit(1)
	}

	regexBackend, err := classifier.NewRegexBackend(classifier.DefaultRules(), sensitivity.Normal)
	if err != nil {
		slog.Error("failed to build regex classifier", "error", err)
		os.Exit(1)
	}
	semanticBackend := classifier.NewSemanticBackend(classifier.NewSemanticAnalyzer())
	composite := classifier.NewCompositeClassifier(regexBackend, semanticBackend)

	dataPolicy, err := cfg.BuildDataPolicy()
	if err != nil {
		slog.Error("failed to build data policy", "error", err)
		os.Exit(1)
	}
	policyEngine := policy.NewEngine()
	policyEngine.AddPolicy(dataPolicy)
	policyEngine.SetDefaultPolicy(dataPolicy)

	gate := gateway.NewGate(composite, policyEngine)

	authRegistry := buildChannelAuthRegistry(cfg)

	mux := http.NewServeMux()
	mux.Handle("/chat/ws", webchat.NewHandler(gate, manager, logger))
	mux.HandleFunc("/webhook/", newWebhookHandler(gate, manager, complianceEngine, auditBus, tp, authRegistry, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // disabled for the long-lived WebChat connection
		IdleTimeout:  120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("gateway server starting", "addr", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("gateway server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("server error", "error", err)
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	}

	slog.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		slog.Error("telemetry shutdown error", "error", err)
	}

	slog.Info("safeclaw stopped")
}

func enabledChannelNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Channels))
	for name, ch := range cfg.Channels {
		if ch.Enabled {
			names = append(names, name)
		}
	}
	return names
}

// buildChannelAuthRegistry constructs one ChannelAuth per enabled entry in
// cfg.Channels, keyed by the platform names internal/channelauth knows how
// to verify.
func buildChannelAuthRegistry(cfg *config.Config) *channelauth.Registry {
	registry := channelauth.NewRegistry()
	for name, ch := range cfg.Channels {
		if !ch.Enabled {
			continue
		}
		switch name {
		case "slack":
			registry.Register(channelauth.NewSlackAuth(ch.Secret))
		case "discord":
			registry.Register(channelauth.NewDiscordAuth(ch.Secret))
		case "dingtalk":
			registry.Register(channelauth.NewDingTalkAuth(ch.Secret))
		case "feishu":
			registry.Register(channelauth.NewFeishuAuth(ch.Secret))
		case "wecom":
			registry.Register(channelauth.NewWeComAuth(ch.Secret))
		case "telegram":
			registry.Register(channelauth.NewTelegramAuth())
		default:
			slog.Warn("unknown channel in config, skipping", "channel", name)
		}
	}
	return registry
}

// webhookRequest is the minimal inbound shape every supported webhook
// channel sends: a user/chat pair and the message text.
type webhookRequest struct {
	UserID  string `json:"user_id"`
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}

// newWebhookHandler dispatches /webhook/{channel} requests through channel
// signature verification, the Privacy Gate, the compliance engine, and the
// session manager's TEE routing, auditing the outcome on auditBus.
func newWebhookHandler(
	gate *gateway.Gate,
	manager *session.Manager,
	complianceEngine *compliance.Engine,
	auditBus *leakage.AuditEventBus,
	tp *telemetry.Provider,
	registry *channelauth.Registry,
	logger *slog.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channel := r.PathValue("channel")
		if channel == "" {
			channel = r.URL.Path[len("/webhook/"):]
		}
		if !registry.HasChannel(channel) {
			http.Error(w, "unknown channel", http.StatusNotFound)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}

		headers := make(map[string]string, len(r.Header))
		for k := range r.Header {
			headers[k] = r.Header.Get(k)
		}

		outcome, err := registry.Verify(channel, headers, body, time.Now().Unix())
		if err != nil || !outcome.IsAllowed() {
			logger.Warn("webhook auth rejected", "channel", channel, "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req webhookRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		ctx, span := tp.StartGateSpan(r.Context(), "", channel)
		sess := manager.GetOrCreate(req.UserID, channel, req.ChatID, time.Now())

		result, decision, err := gate.Process(ctx, gateway.GateInput{
			UserID:      req.UserID,
			ChannelID:   channel,
			ChatID:      req.ChatID,
			Content:     req.Message,
			ContentType: memory.Text,
		})
		if err != nil {
			tp.EndGateSpan(span, "", 0, "", err)
			http.Error(w, "processing failed", http.StatusInternalServerError)
			return
		}
		tp.EndGateSpan(span, result.Sensitivity.String(), len(result.Matches), decision.String(), nil)

		violations := complianceEngine.Evaluate(req.Message, result.Sensitivity, result.TaintList())
		for _, v := range violations {
			auditBus.Publish(ctx, leakage.NewAuditEvent(sess.ID, leakage.SeverityWarning, leakage.VectorComplianceViolation, v.Description, time.Now()))
		}

		var reply string
		switch decision {
		case policy.Reject:
			reply = "message rejected by privacy policy"
		case policy.RequireConfirmation:
			reply = "message requires confirmation before processing"
		case policy.ProcessInTee:
			reply, err = manager.ProcessInTee(ctx, sess.ID, req.Message, time.Now())
			if err != nil {
				http.Error(w, "tee processing failed", http.StatusInternalServerError)
				return
			}
		default:
			reply = "received"
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"session_id": sess.ID, "reply": reply})
	}
}
