package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/novahub/nova-gateway/internal/agent"
	"github.com/novahub/nova-gateway/internal/cache"
	"github.com/novahub/nova-gateway/internal/capability"
	"github.com/novahub/nova-gateway/internal/channel"
	"github.com/novahub/nova-gateway/internal/config"
	"github.com/novahub/nova-gateway/internal/inference"
	"github.com/novahub/nova-gateway/internal/logging"
	"github.com/novahub/nova-gateway/internal/orchestrator"
	"github.com/novahub/nova-gateway/internal/router"
)

// maxAudioBytes caps uploads to the transcription endpoint.
const maxAudioBytes = 25 << 20

// Server exposes the gateway over HTTP: chat, streaming chat, tool
// listing, status and transcription, plus Prometheus metrics.
type Server struct {
	cfg          *config.Config
	pipeline     *agent.Pipeline
	orchestrator *orchestrator.Orchestrator
	client       *inference.Client
	registry     *capability.Registry
	cache        *cache.Cache
	contexts     *router.ContextStore
	httpServer   *http.Server
	startTime    time.Time
	logger       *slog.Logger
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
	Platform string `json:"platform,omitempty"`
}

// ChatResponse is the reply to POST /api/v1/chat.
type ChatResponse struct {
	Reply     string `json:"reply"`
	Timestamp string `json:"timestamp"`
}

// ToolInfo describes one registered capability.
type ToolInfo struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Cost        int               `json:"cost"`
	Args        map[string]string `json:"args,omitempty"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse is the /api/v1/status body.
type StatusResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Uptime    string          `json:"uptime"`
	Services  map[string]any  `json:"services"`
	Channels  map[string]bool `json:"channels"`
	Timestamp string          `json:"timestamp"`
}

// TranscribeResponse is the /api/v1/transcribe body.
type TranscribeResponse struct {
	Text string `json:"text"`
}

// New creates the HTTP server with all routes registered.
func New(cfg *config.Config, pipeline *agent.Pipeline, orch *orchestrator.Orchestrator, client *inference.Client, registry *capability.Registry, c *cache.Cache, contexts *router.ContextStore) *Server {
	s := &Server{
		cfg:          cfg,
		pipeline:     pipeline,
		orchestrator: orch,
		client:       client,
		registry:     registry,
		cache:        c,
		contexts:     contexts,
		startTime:    time.Now(),
		logger:       logging.WithComponent("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/api/v1/chat", s.chatHandler)
	mux.HandleFunc("/api/v1/chat/stream", s.chatStreamHandler)
	mux.HandleFunc("/api/v1/tools", s.toolsHandler)
	mux.HandleFunc("/api/v1/status", s.statusHandler)
	mux.HandleFunc("/api/v1/transcribe", s.transcribeHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// healthHandler handles health check requests
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   "1.0.0",
		Uptime:    time.Since(s.startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (*ChatRequest, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return nil, false
	}
	if req.UserID == "" || req.Message == "" {
		http.Error(w, "user_id and message required", http.StatusBadRequest)
		return nil, false
	}
	if req.Platform == "" {
		req.Platform = "web"
	}
	return &req, true
}

// chatHandler runs one message through the pipeline and returns the reply.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	reply := s.pipeline.Process(r.Context(), &channel.Message{
		Channel: req.Platform,
		UserID:  req.UserID,
		Content: req.Message,
	})
	writeJSON(w, http.StatusOK, ChatResponse{
		Reply:     reply,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// chatStreamHandler runs the full task loop and streams phase events as
// SSE. Heartbeats keep the connection alive while a step is in flight.
func (s *Server) chatStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for event := range s.orchestrator.Stream(r.Context(), req.Message, req.UserID, req.Platform, "") {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
		flusher.Flush()
	}
}

// toolsHandler lists registered capabilities.
func (s *Server) toolsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tools := []ToolInfo{}
	for _, name := range s.registry.Names() {
		d := s.registry.Resolve(name)
		if d == nil {
			continue
		}
		tools = append(tools, ToolInfo{
			Name:        d.Name,
			Description: d.Description,
			Cost:        d.Cost,
			Args:        d.ArgSpec,
		})
	}
	writeJSON(w, http.StatusOK, tools)
}

// statusHandler reports full system status.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	poolSize, poolFailed := 0, 0
	if pool := s.client.Pool(); pool != nil {
		poolSize = pool.Size()
		poolFailed = pool.FailedCount()
	}
	services := map[string]any{
		"inference": map[string]any{
			"tiers":            s.client.TierCount(),
			"pool_size":        poolSize,
			"pool_failed_keys": poolFailed,
		},
		"cache": map[string]any{
			"entries": s.cache.Len(),
		},
		"contexts": map[string]any{
			"active": s.contexts.Len(),
		},
		"tools": map[string]any{
			"registered": s.registry.Len(),
		},
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:    "healthy",
		Version:   "1.0.0",
		Uptime:    time.Since(s.startTime).String(),
		Services:  services,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Channels: map[string]bool{
			"telegram": s.cfg.Channels.Telegram.Enabled,
			"discord":  s.cfg.Channels.Discord.Enabled,
			"webchat":  s.cfg.Channels.WebChat.Enabled,
		},
	})
}

// transcribeHandler accepts an audio upload and returns its transcript.
func (s *Server) transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "audio file required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxAudioBytes))
	if err != nil {
		http.Error(w, "failed to read audio", http.StatusInternalServerError)
		return
	}

	text, err := s.client.Transcribe(r.Context(), audio, header.Filename)
	if errors.Is(err, inference.ErrEmptyTranscript) {
		writeJSON(w, http.StatusOK, TranscribeResponse{Text: ""})
		return
	}
	if err != nil {
		s.logger.Error("transcription failed", "error", err)
		http.Error(w, "transcription failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, TranscribeResponse{Text: text})
}
