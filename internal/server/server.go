package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/staffing-pipeline/internal/accounts"
	"github.com/jonathan/staffing-pipeline/internal/config"
	"github.com/jonathan/staffing-pipeline/internal/db"
	"github.com/jonathan/staffing-pipeline/internal/documents"
	"github.com/jonathan/staffing-pipeline/internal/files"
	"github.com/jonathan/staffing-pipeline/internal/hours"
	"github.com/jonathan/staffing-pipeline/internal/notify"
	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
	"github.com/jonathan/staffing-pipeline/internal/server/middleware"
	"github.com/jonathan/staffing-pipeline/internal/server/ratelimit"
	"github.com/jonathan/staffing-pipeline/internal/stages"
	"github.com/jonathan/staffing-pipeline/internal/timetrack"
	"github.com/jonathan/staffing-pipeline/internal/transition"
	"github.com/jonathan/staffing-pipeline/internal/types"
)

// maxJSONBody bounds JSON request bodies
const maxJSONBody = 1 << 20

// Deps are the services behind the HTTP API
type Deps struct {
	Store       db.Store
	Transitions *transition.Engine
	Stages      *stages.Admin
	Documents   *documents.Tracker
	Files       *files.LocalStore
	Timer       *timetrack.Machine
	Hours       *hours.Engine
	JWT         *JWTService
	Passwords   PasswordVerifier
	Limiter     *ratelimit.Limiter
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	db          *db.DB
	tokens      documents.TokenStore
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	authHandler *AuthHandler

	transitions *transition.Engine
	stages      *stages.Admin
	documents   *documents.Tracker
	files       *files.LocalStore
	timer       *timetrack.Machine
	hours       *hours.Engine
}

// New wires the full stack from cfg: database, token store, file store,
// mailer and the domain services.
func New(ctx context.Context, cfg *config.ServerConfig) (*Server, error) {
	lockTimeout, err := cfg.LockTimeoutDuration()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL, db.WithLockTimeout(lockTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	passwordConfig, err := config.NewPasswordConfig()
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create password config: %w", err)
	}
	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}

	tokens, err := documents.OpenBadgerTokenStore(cfg.TokenStoreDir)
	if err != nil {
		database.Close()
		return nil, err
	}
	fileStore, err := files.NewLocalStore(cfg.FileStorageDir, cfg.MaxUploadBytes)
	if err != nil {
		tokens.Close()
		database.Close()
		return nil, err
	}

	limiterConfig, err := ratelimit.LoadConfig()
	if err != nil {
		tokens.Close()
		database.Close()
		return nil, err
	}

	mailer := notify.New(notify.Config{
		ResendAPIKey: cfg.ResendAPIKey,
		SMTPHost:     cfg.SMTPHost,
		SMTPPort:     cfg.SMTPPort,
		SMTPUser:     cfg.SMTPUser,
		SMTPPass:     cfg.SMTPPass,
		From:         cfg.MailFrom,
		LoginURL:     cfg.LoginURL,
		CompanyName:  cfg.CompanyName,
	})
	log.Printf("[server] email transport: %s", mailer.Transport())

	provisioner := accounts.NewProvisioner(passwordConfig, mailer)
	tracker := documents.NewTracker(database, tokens, documents.Config{
		FrontendURL:       cfg.FrontendURL,
		PublicBaseURL:     cfg.PublicBaseURL,
		DefaultExpiryDays: cfg.TokenDefaultDays,
		MaxExpiryDays:     cfg.TokenMaxDays,
		InvalidateOnUse:   cfg.TokenInvalidateOnUse,
	}, documents.WithFiles(fileStore), documents.WithNotifier(mailer))

	s := NewWithDeps(cfg.Port, Deps{
		Store:       database,
		Transitions: transition.NewEngine(database, provisioner),
		Stages:      stages.NewAdmin(database),
		Documents:   tracker,
		Files:       fileStore,
		Timer:       timetrack.NewMachine(database, timetrack.RequireActiveAccount(cfg.RequiresActiveAccount())),
		Hours:       hours.NewEngine(database, loc),
		JWT:         NewJWTService(jwtConfig),
		Passwords:   passwordConfig,
		Limiter:     ratelimit.NewLimiter(limiterConfig),
	})
	s.db = database
	s.tokens = tokens
	return s, nil
}

// NewWithDeps builds a server around already constructed services
func NewWithDeps(port int, deps Deps) *Server {
	s := &Server{
		rateLimiter: deps.Limiter,
		jwtService:  deps.JWT,
		authHandler: NewAuthHandler(NewAccountService(deps.Store, deps.Passwords), deps.JWT),
		transitions: deps.Transitions,
		stages:      deps.Stages,
		documents:   deps.Documents,
		files:       deps.Files,
		timer:       deps.Timer,
		hours:       deps.Hours,
	}

	mux := http.NewServeMux()
	s.routes(mux)

	handler := s.withLogging(s.withCORS(mux))
	if s.rateLimiter != nil {
		handler = s.withRateLimit(handler)
	}
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes(mux *http.ServeMux) {
	auth := middleware.AuthMiddleware(s.jwtService.AsTokenValidator())
	protect := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux.HandleFunc("GET /health", s.handleHealth)

	// Authentication
	mux.HandleFunc("POST /auth/login", s.authHandler.Login)
	mux.Handle("GET /auth/me", protect(s.authHandler.Me))

	// Candidate-facing document links (the token is the credential)
	mux.HandleFunc("GET /documents/{token}", s.handleShowDocumentLink)
	mux.HandleFunc("POST /documents/{token}/submit", s.handleSubmitDocument)
	mux.HandleFunc("GET /files/{ref...}", s.handleServeFile)

	// Applications and stage transitions
	mux.Handle("POST /applications", protect(s.handleEnroll))
	mux.Handle("POST /applications/{id}/advance", protect(s.handleAdvance))
	mux.Handle("POST /applications/{id}/stage", protect(s.handleSetStage))
	mux.Handle("GET /applications/{id}/stages/history", protect(s.handleStageHistory))
	mux.Handle("GET /applications/{id}/stages/final-status", protect(s.handleFinalStageStatus))
	mux.Handle("GET /applications/{id}/stages/available", protect(s.handleAvailableStages))

	// Application documents
	mux.Handle("GET /applications/{id}/documents", protect(s.handleStageDocuments))
	mux.Handle("GET /applications/{id}/documents/status", protect(s.handleCompletionStatus))
	mux.Handle("GET /applications/{id}/documents/filled", protect(s.handleFilledDocuments))
	mux.Handle("POST /applications/{id}/documents/links", protect(s.handleIssueLinks))
	mux.Handle("POST /applications/{id}/documents/links/send", protect(s.handleSendLinks))

	// Company stage configuration
	mux.Handle("GET /companies/{company_id}/stages", protect(s.handleListStages))
	mux.Handle("POST /companies/{company_id}/stages", protect(s.handleCreateStage))
	mux.Handle("POST /companies/{company_id}/stages/defaults", protect(s.handleCreateDefaultStages))
	mux.Handle("POST /companies/{company_id}/stages/reorder", protect(s.handleReorderStages))
	mux.Handle("GET /companies/{company_id}/stages/check", protect(s.handleCheckStages))
	mux.Handle("PATCH /companies/{company_id}/stages/{stage_id}", protect(s.handleUpdateStage))
	mux.Handle("DELETE /companies/{company_id}/stages/{stage_id}", protect(s.handleDeleteStage))
	mux.Handle("PUT /companies/{company_id}/stages/{stage_id}/documents", protect(s.handleSetStageDocuments))
	mux.Handle("GET /companies/{company_id}/stages/{stage_id}/safety", protect(s.handleStageSafety))

	// Time tracking
	mux.Handle("POST /jobs/{id}/time/start", protect(s.handleTimeStart))
	mux.Handle("POST /jobs/{id}/time/pause", protect(s.handleTimePause))
	mux.Handle("POST /jobs/{id}/time/resume", protect(s.handleTimeResume))
	mux.Handle("POST /jobs/{id}/time/stop", protect(s.handleTimeStop))
	mux.Handle("GET /jobs/{id}/time/current", protect(s.handleTimeCurrent))
	mux.Handle("GET /jobs/{id}/time/logs", protect(s.handleTimeLogs))
	mux.Handle("GET /jobs/{id}/time/report", protect(s.handleJobReport))

	// Hour aggregation
	mux.Handle("GET /candidates/{id}/time/summary", protect(s.handleWorkerSummary))
	mux.Handle("GET /candidates/{id}/time/report", protect(s.handleWorkerReport))
	mux.Handle("GET /candidates/{id}/time/line-items", protect(s.handleLineItems))
}

// Start begins listening for requests
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.Close()
	log.Println("Server stopped")
	return nil
}

// Close releases the rate limiter, token store and database
func (s *Server) Close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.tokens != nil {
		if err := s.tokens.Close(); err != nil {
			log.Printf("[server] failed to close token store: %v", err)
		}
	}
	if s.db != nil {
		s.db.Close()
	}
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": err.Error()})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// decodeJSON reads a JSON body into dst and validates it. An empty body
// leaves dst untouched when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case optional && errors.Is(err, io.EOF):
		case errors.As(err, &tooLarge):
			return &pipelineerr.ValidationError{Field: "body", Message: "request body too large"}
		default:
			return &pipelineerr.ValidationError{Field: "body", Message: "invalid JSON"}
		}
	}
	return types.Validate(dst)
}

// pathUUID parses a UUID path parameter
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return types.ParseUUID(name, r.PathValue(name))
}

// actorID returns the authenticated account id
func actorID(r *http.Request) (uuid.UUID, error) {
	actor, err := middleware.GetActor(r)
	if err != nil {
		return uuid.Nil, err
	}
	return actor.ID, nil
}

// extractClientID extracts the client identifier from the request.
// For MVP, this uses the IP address from RemoteAddr.
// In the future, this could use X-Forwarded-For header (only from trusted proxies).
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
		"retryable": true,
		"applied":   false,
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	log.Printf("[rate-limit] Rate limit exceeded: Limit=%d Remaining=%d Reset=%s",
		info.Limit, info.Remaining, info.ResetTime.Format(time.RFC3339))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
