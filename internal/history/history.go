package history

import (
	"context"
	"time"

	"github.com/novahub/nova-gateway/internal/orchestrator"
)

// Exchange is one persisted user/assistant round trip.
type Exchange struct {
	UserID    string    `json:"user_id"`
	Platform  string    `json:"platform"`
	Message   string    `json:"message"`
	Reply     string    `json:"reply"`
	Timestamp time.Time `json:"timestamp"`
}

// maxExchanges caps the persisted history per conversation.
const maxExchanges = 100

// Store persists conversation exchanges and terminal run checkpoints.
// Implemented by RedisStore, with MemoryStore as the fallback when no
// Redis address is configured.
type Store interface {
	AppendExchange(ctx context.Context, ex Exchange) error
	Recent(ctx context.Context, userID, platform string, n int) ([]Exchange, error)
	SaveRun(ctx context.Context, state *orchestrator.TaskState) error
	LoadRun(ctx context.Context, threadID string) (*orchestrator.TaskState, error)
	Close() error
}

func conversationKey(userID, platform string) string {
	return "nova:history:" + userID + "@" + platform
}

func runKey(threadID string) string {
	return "nova:run:" + threadID
}
