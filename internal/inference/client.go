package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/novahub/nova-gateway/internal/config"
	"github.com/novahub/nova-gateway/internal/logging"
	"github.com/novahub/nova-gateway/internal/metrics"
)

// Apology is the literal answer returned when every provider tier is
// exhausted. Downstream callers treat it as a sentinel failure, matched by
// prefix with IsApology, never as a model answer worth caching or reusing.
const Apology = "Sorry, I'm having trouble reaching my providers right now. Please try again in a moment. 🙏"

// IsApology reports whether text is the all-tiers-failed sentinel.
func IsApology(text string) bool {
	return strings.HasPrefix(text, "Sorry, I'm having trouble reaching my providers")
}

// ErrEmptyTranscript marks a transcription that completed but produced no
// text. A soft failure: ask the user to repeat, don't report an error.
var ErrEmptyTranscript = errors.New("transcription produced empty text")

// ErrNoProviders means nothing is configured at all. The one setup error
// that is allowed to propagate as a hard failure.
var ErrNoProviders = errors.New("no inference providers configured")

// Preference selects which tier serves a request.
type Preference string

const (
	// PreferAuto walks the tiers in rank order (the default).
	PreferAuto Preference = "auto"
	// PreferPool pins the request to the tier-1 credential pool.
	PreferPool Preference = "pool"
)

// Request is one text-completion request.
type Request struct {
	Prompt       string
	SystemPrompt string
	Preference   Preference
	Model        string
}

// tier is one rung of the failover ladder.
type tier struct {
	name     string
	provider completer
	pool     *CredentialPool // non-nil only for tier 1
	apiKey   string          // single credential for lower tiers
}

// Client spreads completions across ranked provider tiers, rotating pool
// credentials on rate-limit and auth rejections and cascading to lower
// tiers when a whole tier is exhausted.
type Client struct {
	tiers  []tier
	logger *slog.Logger
}

// NewClient builds a client from the configured tiers.
func NewClient(cfg *config.InferenceConfig) (*Client, error) {
	timeout := cfg.GetTimeout()
	var tiers []tier

	if cfg.Pool.BaseURL != "" && len(cfg.Pool.Keys) > 0 {
		tiers = append(tiers, tier{
			name:     "pool",
			provider: newProvider(cfg.Pool.BaseURL, cfg.Pool.Model, timeout),
			pool:     NewCredentialPool(cfg.Pool.Keys),
		})
	}
	for i := range cfg.Fallbacks {
		f := &cfg.Fallbacks[i]
		if f.BaseURL == "" || (f.APIKey == "" && !f.Local()) {
			continue
		}
		comp, err := newEngineProvider(f.Engine, f.BaseURL, f.Model, timeout)
		if err != nil {
			return nil, fmt.Errorf("fallback %s: %w", f.Name, err)
		}
		tiers = append(tiers, tier{
			name:     f.Name,
			provider: comp,
			apiKey:   f.APIKey,
		})
	}

	if len(tiers) == 0 {
		return nil, ErrNoProviders
	}

	return &Client{
		tiers:  tiers,
		logger: logging.WithComponent("inference"),
	}, nil
}

// TierCount returns the number of configured provider tiers.
func (c *Client) TierCount() int {
	return len(c.tiers)
}

// Pool exposes the tier-1 credential pool, nil when none is configured.
func (c *Client) Pool() *CredentialPool {
	for _, t := range c.tiers {
		if t.pool != nil {
			return t.pool
		}
	}
	return nil
}

// Generate returns a completion for the request. Transient provider errors
// (429, 401) are absorbed by rotation and tier cascade; a non-transient
// error is returned immediately since retrying other credentials cannot fix
// it. When every tier fails transiently the Apology sentinel is returned
// as the text, with a nil error.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	ordered := c.orderTiers(req.Preference)

	start := time.Now()
	defer func() {
		metrics.InferenceLatency.Observe(time.Since(start).Seconds())
	}()

	for _, t := range ordered {
		text, err := c.generateTier(ctx, t, req)
		if err == nil {
			metrics.InferenceRequests.WithLabelValues(t.name, "ok").Inc()
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		var se *StatusError
		if errors.As(err, &se) && !se.Transient() {
			metrics.InferenceRequests.WithLabelValues(t.name, "error").Inc()
			return "", err
		}
		metrics.InferenceRequests.WithLabelValues(t.name, "exhausted").Inc()
		c.logger.Warn("tier exhausted, cascading", "tier", t.name, "error", err)
	}

	c.logger.Error("all provider tiers failed")
	return Apology, nil
}

// orderTiers puts the preferred tier first, then the rest in rank order.
func (c *Client) orderTiers(pref Preference) []tier {
	if pref == "" || pref == PreferAuto {
		return c.tiers
	}
	ordered := make([]tier, 0, len(c.tiers))
	for _, t := range c.tiers {
		if Preference(t.name) == pref {
			ordered = append(ordered, t)
		}
	}
	for _, t := range c.tiers {
		if Preference(t.name) != pref {
			ordered = append(ordered, t)
		}
	}
	return ordered
}

// generateTier runs one tier's internal failover. For the pool tier every
// non-failed credential is tried at most once; each transient rejection
// flags that credential before moving on.
func (c *Client) generateTier(ctx context.Context, t tier, req Request) (string, error) {
	if t.pool == nil {
		return t.provider.complete(ctx, t.apiKey, req.Model, req.SystemPrompt, req.Prompt)
	}

	var lastErr error
	for attempt := 0; attempt < t.pool.Size(); attempt++ {
		idx, key, ok := t.pool.Next()
		if !ok {
			break
		}

		text, err := t.provider.complete(ctx, key, req.Model, req.SystemPrompt, req.Prompt)
		if err == nil {
			return text, nil
		}

		var se *StatusError
		if errors.As(err, &se) && se.Transient() {
			t.pool.MarkFailed(idx)
			metrics.CredentialFailovers.Inc()
			c.logger.Warn("credential rotated", "tier", t.name, "credential", idx, "status", se.Code)
			lastErr = err
			continue
		}
		return "", err
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("pool has no credentials")
	}
	return "", lastErr
}

// Transcribe converts audio to text with the same tier-1 rotation as
// Generate, falling back to the next tier's transcription endpoint. Empty
// output is ErrEmptyTranscript, a soft failure.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	const whisperModel = "whisper-large-v3"

	var lastErr error
	for _, t := range c.tiers {
		tp, ok := t.provider.(transcriber)
		if !ok {
			// local engines only generate text
			continue
		}
		if t.pool != nil {
			for attempt := 0; attempt < t.pool.Size(); attempt++ {
				idx, key, ok := t.pool.Next()
				if !ok {
					break
				}
				text, err := tp.transcribe(ctx, key, whisperModel, audio, filename)
				if err == nil {
					if text == "" {
						return "", ErrEmptyTranscript
					}
					return text, nil
				}
				var se *StatusError
				if errors.As(err, &se) && se.Transient() {
					t.pool.MarkFailed(idx)
					metrics.CredentialFailovers.Inc()
					lastErr = err
					continue
				}
				lastErr = err
				break
			}
			continue
		}

		text, err := tp.transcribe(ctx, t.apiKey, whisperModel, audio, filename)
		if err == nil {
			if text == "" {
				return "", ErrEmptyTranscript
			}
			return text, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = ErrNoProviders
	}
	return "", fmt.Errorf("all transcription paths failed: %w", lastErr)
}
