package router

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// ContextMessage is one exchanged message in a user's running window.
type ContextMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is the per-user, per-platform conversation window. Every request
// from the same user shares one Context, so all mutation goes through its
// own mutex, never through a store-wide lock.
type Context struct {
	mu sync.Mutex

	UserID     string
	Platform   string
	Messages   []ContextMessage
	LastTool   string
	LastIntent string
	ToolUsage  map[string]int
	CreatedAt  time.Time
	LastActive time.Time

	maxMessages int
}

// Append adds a message to the window, trimming to the configured size.
func (c *Context) Append(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Messages = append(c.Messages, ContextMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if len(c.Messages) > c.maxMessages {
		c.Messages = c.Messages[len(c.Messages)-c.maxMessages:]
	}
	c.LastActive = time.Now()
}

// SetLastRoute records the tool and intent that served the last message.
func (c *Context) SetLastRoute(tool, intent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tool != "" {
		c.LastTool = tool
	}
	c.LastIntent = intent
}

// RecordToolUse bumps the usage histogram for a tool.
func (c *Context) RecordToolUse(tool string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ToolUsage[tool]++
}

// Summary renders the most recent n messages for prompt embedding, each
// truncated to keep the prompt bounded.
func (c *Context) Summary(n int) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.Messages
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, truncate(m.Content, 100)))
	}
	return strings.Join(lines, "\n")
}

// truncate caps s at n bytes, backing off to a rune boundary so prompt
// summaries never carry a split rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// MessageCount returns the current window size.
func (c *Context) MessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Messages)
}

// lastActive reads the activity timestamp under the context's own lock.
func (c *Context) lastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.LastActive
}

// ContextStore creates and garbage-collects Contexts, keyed by user and
// platform.
type ContextStore struct {
	mu          sync.RWMutex
	contexts    map[string]*Context
	maxMessages int
}

// NewContextStore creates a store keeping up to maxMessages per context.
func NewContextStore(maxMessages int) *ContextStore {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	return &ContextStore{
		contexts:    make(map[string]*Context),
		maxMessages: maxMessages,
	}
}

func contextKey(userID, platform string) string {
	return userID + "@" + platform
}

// Get returns the context for a user, creating it lazily on first use.
func (s *ContextStore) Get(userID, platform string) *Context {
	key := contextKey(userID, platform)

	s.mu.RLock()
	ctx, ok := s.contexts[key]
	s.mu.RUnlock()
	if ok {
		return ctx
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx, ok = s.contexts[key]; ok {
		return ctx
	}
	now := time.Now()
	ctx = &Context{
		UserID:      userID,
		Platform:    platform,
		ToolUsage:   make(map[string]int),
		CreatedAt:   now,
		LastActive:  now,
		maxMessages: s.maxMessages,
	}
	s.contexts[key] = ctx
	return ctx
}

// Len returns the number of live contexts.
func (s *ContextStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contexts)
}

// Cleanup drops contexts inactive for longer than maxAge and reports how
// many were removed. Called periodically by the scheduler.
func (s *ContextStore) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, ctx := range s.contexts {
		if ctx.lastActive().Before(cutoff) {
			delete(s.contexts, key)
			removed++
		}
	}
	return removed
}
