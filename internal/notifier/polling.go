package notifier

import (
	"context"
	"strings"
	"time"
)

// Update is the subset of a Telegram update the bot reacts to.
type Update struct {
	UpdateID int              `json:"update_id"`
	Message  *IncomingMessage `json:"message"`
}

type IncomingMessage struct {
	MessageID int    `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type Chat struct {
	ID int64 `json:"id"`
}

// SenderID returns the author of the update's message, or 0.
func (u Update) SenderID() int64 {
	if u.Message == nil || u.Message.From == nil {
		return 0
	}
	return u.Message.From.ID
}

// Text returns the trimmed message text.
func (u Update) Text() string {
	if u.Message == nil {
		return ""
	}
	return strings.TrimSpace(u.Message.Text)
}

// UpdateHandler is called for every received text message.
type UpdateHandler func(ctx context.Context, u Update)

// PollInterval is how long to wait after a failed getUpdates call.
var PollInterval = 5 * time.Second

// StartPolling begins long-polling for updates. Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler UpdateHandler) error {
	offset := 0
	t.log.Info().Msg("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.log.Info().Msg("telegram polling stopped")
			return nil
		default:
		}

		var updates []Update
		err := t.call(ctx, "getUpdates", map[string]any{
			"offset":          offset,
			"timeout":         30,
			"allowed_updates": []string{"message"},
		}, &updates)
		if err != nil {
			if ctx.Err() != nil {
				t.log.Info().Msg("telegram polling stopped")
				return nil
			}
			t.log.Warn().Err(err).Msg("polling request failed")
			select {
			case <-ctx.Done():
			case <-time.After(PollInterval):
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			if update.Text() == "" {
				continue
			}
			t.log.Debug().Int64("from", update.SenderID()).Str("text", update.Text()).Msg("received message")
			handler(ctx, update)
		}
	}
}
