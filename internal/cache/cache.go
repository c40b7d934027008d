package cache

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// entry is one cached response with its expiry deadline.
type entry struct {
	response string
	created  time.Time
	expires  time.Time
}

// Cache is an in-memory TTL store for model responses, plus a fixed table
// of canned replies that bypass inference entirely. Bounded: inserting past
// MaxEntries evicts the entry with the soonest expiry.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time
}

// Canned replies keyed by exact normalized text. Zero cost, never expire.
var cannedResponses = map[string]string{
	"hi":              "Hey there! 👋 I'm Nova, your AI assistant. How can I help you today?",
	"hello":           "Hello! 👋 I'm Nova. What can I do for you?",
	"hey":             "Hey! 👋 I'm Nova. What can I do for you today?",
	"thanks":          "You're welcome! 🙏 Let me know if you need anything else.",
	"thank you":       "You're welcome! 🙏 Happy to help anytime.",
	"bye":             "Goodbye! 👋 Come back anytime.",
	"goodbye":         "Goodbye! 👋 Good luck out there.",
	"who are you":     "I'm Nova 🤖 — an AI assistant with a toolbox of capabilities: weather, calculations, conversions, and more. Try asking me something!",
	"what can you do": "I'm Nova 🤖 and I can check the weather, do math, convert units, pick random options, and plenty more. Just ask!",
}

// New creates a cache with the given entry cap and default TTL.
func New(maxEntries int, defaultTTL time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &Cache{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// normalize strips punctuation and case so trivially different phrasings
// of the same question share a key.
func normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.NewReplacer("?", "", "!", "", ".", "", "؟", "").Replace(s)
	return strings.TrimSpace(s)
}

func makeKey(message, userID string) string {
	sum := md5.Sum([]byte(normalize(message) + "|" + userID))
	return hex.EncodeToString(sum[:])
}

// Canned returns the prebuilt reply for a message, if one exists.
func Canned(message string) (string, bool) {
	resp, ok := cannedResponses[normalize(message)]
	return resp, ok
}

// Get returns the cached response for (message, user) if present and not
// expired. Expired entries are evicted lazily here.
func (c *Cache) Get(message, userID string) (string, bool) {
	if resp, ok := Canned(message); ok {
		return resp, true
	}

	key := makeKey(message, userID)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return "", false
	}
	return e.response, true
}

// Set stores a response with the default TTL.
func (c *Cache) Set(message, response, userID string) {
	c.SetTTL(message, response, userID, c.defaultTTL)
}

// SetTTL stores a response with an explicit TTL. Very short responses and
// error replies are not worth caching.
func (c *Cache) SetTTL(message, response, userID string, ttl time.Duration) {
	if len(response) < 10 || strings.HasPrefix(response, "❌") {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictSoonest()
	}

	now := c.now()
	c.entries[makeKey(message, userID)] = entry{
		response: response,
		created:  now,
		expires:  now.Add(ttl),
	}
}

// evictSoonest drops the single entry closest to expiry. Caller holds mu.
func (c *Cache) evictSoonest() {
	var victim string
	var soonest time.Time
	for k, e := range c.entries {
		if victim == "" || e.expires.Before(soonest) {
			victim = k
			soonest = e.expires
		}
	}
	if victim != "" {
		delete(c.entries, victim)
	}
}

// Sweep removes all expired entries and reports how many were dropped.
// Called periodically by the scheduler.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	dropped := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of stored (possibly expired) entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}
