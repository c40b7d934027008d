package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novahub/nova-gateway/internal/agent"
	"github.com/novahub/nova-gateway/internal/cache"
	"github.com/novahub/nova-gateway/internal/capability"
	"github.com/novahub/nova-gateway/internal/config"
	"github.com/novahub/nova-gateway/internal/history"
	"github.com/novahub/nova-gateway/internal/inference"
	"github.com/novahub/nova-gateway/internal/orchestrator"
	"github.com/novahub/nova-gateway/internal/router"
)

// fakeCompletion serves an OpenAI-style chat completions endpoint with a
// fixed reply.
func fakeCompletion(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices": [{"message": {"content": %q}}]}`, reply)
	}))
}

func testServer(t *testing.T, provider *httptest.Server) *Server {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Port: 18800, Host: "localhost"},
		Inference: config.InferenceConfig{
			Pool: config.PoolConfig{
				BaseURL: provider.URL,
				Model:   "test-model",
				Keys:    []string{"k1"},
			},
		},
		Router: config.RouterConfig{
			RateLimitPerMinute:  30,
			PatternConfidence:   0.8,
			SemanticConfidence:  0.75,
			SemanticSampleLimit: 30,
		},
		Orchestrator: config.OrchestratorConfig{MaxRetries: 3, MaxCapabilities: 12},
	}

	client, err := inference.NewClient(&cfg.Inference)
	require.NoError(t, err)

	registry := capability.NewRegistry()
	require.NoError(t, registry.Register(&capability.Descriptor{
		Name:        "weather",
		Description: "current weather for a location",
		ArgSpec:     map[string]string{"location": "place name"},
		Structured: func(_ context.Context, _ string, args map[string]any) (string, error) {
			loc, _ := args["location"].(string)
			return "cloudy in " + loc, nil
		},
	}))
	dispatcher := capability.NewDispatcher(registry)

	contexts := router.NewContextStore(20)
	rt := router.New(&cfg.Router, dispatcher, client, contexts)

	orch, err := orchestrator.New(&cfg.Orchestrator, client, dispatcher, nil)
	require.NoError(t, err)

	c := cache.New(100, time.Minute)
	pipeline := agent.NewPipeline(rt, orch, client, c, history.NewMemoryStore())

	return New(cfg, pipeline, orch, client, registry, c, contexts)
}

func TestHealthHandler(t *testing.T) {
	provider := fakeCompletion(t, "ok")
	defer provider.Close()
	srv := testServer(t, provider)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.healthHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var hr HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&hr))
	assert.Equal(t, "healthy", hr.Status)
}

func TestChatHandlerToolRoute(t *testing.T) {
	provider := fakeCompletion(t, "unused")
	defer provider.Close()
	srv := testServer(t, provider)

	body, _ := json.Marshal(ChatRequest{UserID: "u1", Message: "weather in Cairo"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.chatHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var cr ChatResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cr))
	assert.Equal(t, "cloudy in Cairo", cr.Reply)
}

func TestChatHandlerCanned(t *testing.T) {
	provider := fakeCompletion(t, "unused")
	defer provider.Close()
	srv := testServer(t, provider)

	body, _ := json.Marshal(ChatRequest{UserID: "u1", Message: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.chatHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var cr ChatResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cr))
	assert.Contains(t, cr.Reply, "Nova")
}

func TestChatHandlerValidation(t *testing.T) {
	provider := fakeCompletion(t, "unused")
	defer provider.Close()
	srv := testServer(t, provider)

	body, _ := json.Marshal(ChatRequest{UserID: "", Message: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.chatHandler(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/chat", nil)
	w = httptest.NewRecorder()
	srv.chatHandler(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestToolsHandler(t *testing.T) {
	provider := fakeCompletion(t, "unused")
	defer provider.Close()
	srv := testServer(t, provider)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	w := httptest.NewRecorder()
	srv.toolsHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var tools []ToolInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&tools))
	require.Len(t, tools, 1)
	assert.Equal(t, "weather", tools[0].Name)
	assert.Equal(t, "place name", tools[0].Args["location"])
}

func TestStatusHandler(t *testing.T) {
	provider := fakeCompletion(t, "unused")
	defer provider.Close()
	srv := testServer(t, provider)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	srv.statusHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var sr StatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sr))
	assert.Equal(t, "healthy", sr.Status)
	inf, ok := sr.Services["inference"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, inf["tiers"])
	assert.EqualValues(t, 1, inf["pool_size"])
}

func TestChatStreamHandlerEmitsSSE(t *testing.T) {
	provider := fakeCompletion(t, `{"action": "respond", "response": "streamed answer"}`)
	defer provider.Close()
	srv := testServer(t, provider)

	body, _ := json.Marshal(ChatRequest{UserID: "u1", Message: "walk me through it"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.chatStreamHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	out := w.Body.String()
	assert.Contains(t, out, "event: thinking")
	assert.Contains(t, out, "event: done")
}

func TestShutdown(t *testing.T) {
	provider := fakeCompletion(t, "ok")
	defer provider.Close()
	srv := testServer(t, provider)

	go srv.Start()
	time.Sleep(100 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}

func TestTranscribeHandlerRejectsGet(t *testing.T) {
	provider := fakeCompletion(t, "ok")
	defer provider.Close()
	srv := testServer(t, provider)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transcribe", nil)
	w := httptest.NewRecorder()
	srv.transcribeHandler(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestTranscribeHandlerRequiresAudio(t *testing.T) {
	provider := fakeCompletion(t, "ok")
	defer provider.Close()
	srv := testServer(t, provider)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	srv.transcribeHandler(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
