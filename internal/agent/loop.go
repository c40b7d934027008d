package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/novahub/nova-gateway/internal/cache"
	"github.com/novahub/nova-gateway/internal/channel"
	"github.com/novahub/nova-gateway/internal/history"
	"github.com/novahub/nova-gateway/internal/inference"
	"github.com/novahub/nova-gateway/internal/logging"
	"github.com/novahub/nova-gateway/internal/metrics"
	"github.com/novahub/nova-gateway/internal/orchestrator"
	"github.com/novahub/nova-gateway/internal/router"
)

// orchestratorWordThreshold: general-chat messages longer than this go
// through the full task loop instead of a single completion.
const orchestratorWordThreshold = 15

const chatSystemPrompt = `You are Nova, a friendly and concise assistant.
Answer directly, keep replies short, and use the conversation history for context.`

// Pipeline runs one inbound message through cache, routing and whichever
// execution path the routing decision picks, then records the exchange.
type Pipeline struct {
	router       *router.Router
	orchestrator *orchestrator.Orchestrator
	client       orchestrator.Generator
	cache        *cache.Cache
	store        history.Store
	logger       *slog.Logger

	// serializes processing per user across entry points (channel
	// adapters and the HTTP surface)
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewPipeline wires the message pipeline. store may be nil to disable
// history persistence.
func NewPipeline(rt *router.Router, orch *orchestrator.Orchestrator, client orchestrator.Generator, c *cache.Cache, store history.Store) *Pipeline {
	return &Pipeline{
		router:       rt,
		orchestrator: orch,
		client:       client,
		cache:        c,
		store:        store,
		logger:       logging.WithComponent("agent"),
		locks:        make(map[string]*sync.Mutex),
	}
}

func (p *Pipeline) userLock(key string) *sync.Mutex {
	p.locksMu.Lock()
	defer p.locksMu.Unlock()
	mu, ok := p.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		p.locks[key] = mu
	}
	return mu
}

// Process handles one inbound message and always returns a reply; every
// failure path degrades to an apologetic answer rather than an error.
func (p *Pipeline) Process(ctx context.Context, msg *channel.Message) string {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return "I didn't catch that. What can I do for you?"
	}

	mu := p.userLock(msg.UserID + "@" + msg.Channel)
	mu.Lock()
	defer mu.Unlock()

	if reply, ok := cache.Canned(content); ok {
		metrics.CacheLookups.WithLabelValues("canned").Inc()
		p.record(ctx, msg, content, reply)
		return reply
	}
	if reply, ok := p.cache.Get(content, msg.UserID); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		p.record(ctx, msg, content, reply)
		return reply
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	res := p.router.Route(ctx, content, msg.UserID, msg.Channel)
	if res.Reply != "" {
		return res.Reply
	}

	var reply string
	switch res.Kind {
	case router.RouteSingleTool:
		reply = p.runTool(ctx, res, content, msg)
	default:
		reply = p.runChat(ctx, res, content, msg)
	}
	if strings.TrimSpace(reply) == "" {
		reply = inference.Apology
	}

	p.cache.Set(content, reply, msg.UserID)
	p.record(ctx, msg, content, reply)
	return reply
}

func (p *Pipeline) runTool(ctx context.Context, res router.Result, content string, msg *channel.Message) string {
	tr := p.router.Dispatch(ctx, res, content, msg.UserID, msg.Channel)
	if tr.Success {
		return tr.Output
	}
	p.logger.Warn("tool dispatch failed",
		"tool", res.Tool, "user_id", msg.UserID, "error", tr.Error)
	return "❌ I couldn't run " + res.Tool + ": " + tr.Error
}

func (p *Pipeline) runChat(ctx context.Context, res router.Result, content string, msg *channel.Message) string {
	if res.Intent == "general" && len(strings.Fields(content)) > orchestratorWordThreshold {
		run := p.orchestrator.Run(ctx, content, msg.UserID, msg.Channel, "")
		return run.FinalAnswer
	}

	prompt := p.chatPrompt(ctx, content, msg)
	reply, err := p.client.Generate(ctx, inference.Request{
		SystemPrompt: chatSystemPrompt,
		Prompt:       prompt,
	})
	if err != nil {
		p.logger.Error("chat completion failed", "user_id", msg.UserID, "error", err)
		return inference.Apology
	}
	return reply
}

// chatPrompt folds recent history into the completion request.
func (p *Pipeline) chatPrompt(ctx context.Context, content string, msg *channel.Message) string {
	var b strings.Builder
	if p.store != nil {
		if recent, err := p.store.Recent(ctx, msg.UserID, msg.Channel, 5); err == nil && len(recent) > 0 {
			b.WriteString("Conversation so far (newest first):\n")
			for _, ex := range recent {
				b.WriteString("user: " + ex.Message + "\n")
				b.WriteString("assistant: " + ex.Reply + "\n")
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("User: " + content)
	return b.String()
}

func (p *Pipeline) record(ctx context.Context, msg *channel.Message, content, reply string) {
	p.router.Contexts().Get(msg.UserID, msg.Channel).Append("assistant", reply)
	if p.store == nil {
		return
	}
	ex := history.Exchange{
		UserID:    msg.UserID,
		Platform:  msg.Channel,
		Message:   content,
		Reply:     reply,
		Timestamp: time.Now(),
	}
	if err := p.store.AppendExchange(ctx, ex); err != nil {
		p.logger.Warn("history append failed", "user_id", msg.UserID, "error", err)
	}
}

// userQueueDepth bounds each user's pending messages; overflow is shed so
// one flooding user cannot stall the adapter pump.
const userQueueDepth = 16

// Serve pumps an adapter's incoming messages through the pipeline until
// the context is canceled or the adapter closes its channel. Messages from
// the same user are queued and handled one at a time in arrival order;
// distinct users proceed in parallel.
func (p *Pipeline) Serve(ctx context.Context, adapter channel.ChannelAdapter) {
	queues := make(map[string]chan *channel.Message)
	var wg sync.WaitGroup
	defer func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-adapter.Incoming():
			if !ok {
				return
			}
			q, ok := queues[msg.UserID]
			if !ok {
				q = make(chan *channel.Message, userQueueDepth)
				queues[msg.UserID] = q
				wg.Add(1)
				go func() {
					defer wg.Done()
					for m := range q {
						p.deliver(ctx, adapter, m)
					}
				}()
			}
			select {
			case q <- msg:
			default:
				p.logger.Warn("user queue full, dropping message",
					"channel", adapter.Name(), "user_id", msg.UserID)
			}
		}
	}
}

func (p *Pipeline) deliver(ctx context.Context, adapter channel.ChannelAdapter, m *channel.Message) {
	reply := p.Process(ctx, m)
	if err := adapter.SendMessage(m.UserID, &channel.Response{Content: reply}); err != nil {
		p.logger.Error("send failed",
			"channel", adapter.Name(), "user_id", m.UserID, "error", err)
	}
}
