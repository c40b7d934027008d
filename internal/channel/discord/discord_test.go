package discord

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	adapter := NewDiscordAdapter("token")
	assert.Equal(t, "discord", adapter.Name())
}

func TestEnabled(t *testing.T) {
	assert.True(t, NewDiscordAdapter("token").IsEnabled())
	assert.False(t, NewDiscordAdapter("").IsEnabled())
}
