package api

import (
	"net/http"
	"time"

	"github.com/deliblab/deliblab/internal/cloud"
	"github.com/deliblab/deliblab/internal/llm"
	"github.com/deliblab/deliblab/internal/logger"
	"github.com/deliblab/deliblab/internal/middleware"
	"github.com/deliblab/deliblab/internal/services"
)

// Options wires the router. Store and Auth are required; LLM and Sheets may be nil,
// in which case their routes report the feature as unavailable.
type Options struct {
	Store     Store
	Logger    logger.Logger
	Auth      *middleware.Authenticator
	TokenTTL  time.Duration
	LLM       llm.Client
	Embedder  llm.Embedder
	Sheets    *cloud.SheetsClient
	Heartbeat time.Duration
}

type Router struct {
	store     Store
	log       logger.Logger
	auth      *middleware.Authenticator
	sheets    *cloud.SheetsClient
	heartbeat time.Duration

	experiments *services.ExperimentService
	consent     *services.ConsentService
	authSvc     *services.AuthService
	aiConfig    *services.AIConfigService
	mediator    *services.MediatorService
	llmSvc      *services.LLMService
	export      *services.ExportService
	analytics   *services.AnalyticsService
}

func NewRouter(opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	rt := &Router{
		store:       opts.Store,
		log:         opts.Logger,
		auth:        opts.Auth,
		sheets:      opts.Sheets,
		heartbeat:   opts.Heartbeat,
		experiments: services.NewExperimentService(opts.Store),
		consent:     services.NewConsentService(opts.Store),
		authSvc:     services.NewAuthService(opts.Store, opts.Auth.SignToken, opts.TokenTTL),
		aiConfig:    services.NewAIConfigService(opts.Store),
		export:      services.NewExportService(opts.Store),
		analytics:   services.NewAnalyticsService(opts.Store),
	}
	var completer llm.Completer
	if opts.LLM != nil {
		completer = opts.LLM
	}
	rt.mediator = services.NewMediatorService(opts.Store, completer)
	rt.llmSvc = services.NewLLMService(opts.Store, opts.LLM, opts.Embedder)
	return rt
}

func (rt *Router) Register(mux *http.ServeMux) {
	// participants
	mux.HandleFunc("POST /api/join", rt.handleJoin)
	p := "/api/experiments/{exp}/participants/{user}"
	mux.HandleFunc("GET "+p, rt.guard(rt.handleProgress))
	mux.HandleFunc("POST "+p+"/next", rt.guard(rt.handleNext))
	mux.HandleFunc("PUT "+p+"/profile", rt.guard(rt.handleProfile))
	mux.HandleFunc("POST "+p+"/tos", rt.guard(rt.handleTOS))
	mux.HandleFunc("POST "+p+"/messages", rt.guard(rt.handleMessage))
	mux.HandleFunc("PUT "+p+"/votes", rt.guard(rt.handleVotes))
	mux.HandleFunc("PUT "+p+"/survey", rt.guard(rt.handleSurvey))
	mux.HandleFunc("PUT "+p+"/ready", rt.guard(rt.handleReady))
	mux.HandleFunc("GET "+p+"/events", rt.guard(rt.handleParticipantEvents))

	// experimenters
	mux.HandleFunc("POST /api/auth/register", rt.handleRegister)
	mux.HandleFunc("POST /api/auth/login", rt.handleLogin)
	mux.Handle("GET /api/experiments", rt.authed(rt.handleListExperiments))
	mux.Handle("POST /api/experiments", rt.authed(rt.handleCreateExperiment))
	mux.Handle("GET /api/experiments/{exp}", rt.authed(rt.handleGetExperiment))
	mux.Handle("DELETE /api/experiments/{exp}", rt.authed(rt.handleDeleteExperiment))
	mux.Handle("GET /api/experiments/{exp}/events", rt.authed(rt.handleExperimentEvents))
	mux.Handle("POST /api/experiments/{exp}/reveal", rt.authed(rt.handleReveal))
	mux.Handle("POST /api/experiments/{exp}/discuss", rt.authed(rt.handleDiscuss))
	mux.Handle("POST /api/experiments/{exp}/mediate", rt.authed(rt.handleMediate))
	mux.Handle("GET /api/experiments/{exp}/export", rt.authed(rt.handleExport))
	mux.Handle("GET /api/experiments/{exp}/analytics", rt.authed(rt.handleAnalytics))
	mux.Handle("GET /api/settings/llm", rt.authed(rt.handleGetLLMSettings))
	mux.Handle("PUT /api/settings/llm", rt.authed(rt.handlePutLLMSettings))
	mux.Handle("POST /api/admin/refresh", rt.authed(rt.handleRefresh))
	mux.Handle("GET /api/admin/audit", rt.authed(rt.handleAudit))
	mux.Handle("GET /api/sheets/{id}", rt.authed(rt.handleSheet))
	mux.Handle("POST /api/llm/complete", rt.authed(rt.handleComplete))
	mux.Handle("POST /api/llm/embed", rt.authed(rt.handleEmbed))
	mux.Handle("POST /api/llm/recommend", rt.authed(rt.handleRecommend))
}

func (rt *Router) authed(h http.HandlerFunc) http.Handler {
	return rt.auth.WithAuth(middleware.RequireAuth(h))
}

func actor(r *http.Request) string {
	id, _ := middleware.ExperimenterIDFromContext(r.Context())
	return id
}
