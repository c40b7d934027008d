package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/novahub/nova-gateway/internal/channel"
	"github.com/novahub/nova-gateway/internal/logging"
)

// maxVoiceBytes caps voice note downloads before transcription.
const maxVoiceBytes = 20 << 20

// Transcriber turns downloaded voice audio into text. Usually backed by
// the inference client; nil disables voice handling.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

type TelegramAdapter struct {
	bot         *tgbotapi.BotAPI
	token       string
	transcriber Transcriber
	incoming    chan *channel.Message
	logger      *slog.Logger
}

func NewTelegramAdapter(token string, transcriber Transcriber) *TelegramAdapter {
	return &TelegramAdapter{
		token:       token,
		transcriber: transcriber,
		incoming:    make(chan *channel.Message, 100),
		logger:      logging.WithComponent("telegram"),
	}
}

func (t *TelegramAdapter) Name() string {
	return "telegram"
}

func (t *TelegramAdapter) IsEnabled() bool {
	return t.token != ""
}

func (t *TelegramAdapter) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return err
	}
	t.bot = bot

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for update := range updates {
			if update.Message == nil {
				continue
			}
			msg := t.normalize(ctx, update.Message)
			if msg == nil {
				continue
			}
			select {
			case t.incoming <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// normalize converts a Telegram update into the shared message shape,
// transcribing voice notes when a transcriber is wired.
func (t *TelegramAdapter) normalize(ctx context.Context, m *tgbotapi.Message) *channel.Message {
	content := m.Text

	if m.Voice != nil && t.transcriber != nil {
		text, err := t.transcribeVoice(ctx, m.Voice.FileID)
		if err != nil {
			t.logger.Warn("voice transcription failed", "chat_id", m.Chat.ID, "error", err)
			content = ""
		} else {
			content = text
		}
	}
	if content == "" {
		return nil
	}

	return &channel.Message{
		ID:        strconv.Itoa(m.MessageID),
		Channel:   "telegram",
		UserID:    strconv.FormatInt(m.Chat.ID, 10),
		Content:   content,
		Metadata:  map[string]string{"from_id": strconv.FormatInt(m.From.ID, 10)},
		Timestamp: int64(m.Date),
	}
}

func (t *TelegramAdapter) transcribeVoice(ctx context.Context, fileID string) (string, error) {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve voice file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download voice file: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxVoiceBytes))
	if err != nil {
		return "", err
	}
	return t.transcriber.Transcribe(ctx, audio, "voice.ogg")
}

func (t *TelegramAdapter) Stop() error {
	close(t.incoming)
	return nil
}

func (t *TelegramAdapter) SendMessage(userID string, resp *channel.Response) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad chat id %q: %w", userID, err)
	}
	reply := tgbotapi.NewMessage(chatID, resp.Content)
	_, err = t.bot.Send(reply)
	return err
}

func (t *TelegramAdapter) Incoming() <-chan *channel.Message {
	return t.incoming
}
