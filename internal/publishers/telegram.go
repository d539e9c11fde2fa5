package publishers

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"multi-platform-rpa/internal/model"
)

// Telegram posts videos to a channel through a bot.
type Telegram struct {
	botToken string
	chatID   int64
	endpoint string

	mu  sync.Mutex
	api *tgbotapi.BotAPI
}

func NewTelegram(botToken string, chatID int64) *Telegram {
	return &Telegram{botToken: botToken, chatID: chatID, endpoint: tgbotapi.APIEndpoint}
}

func (t *Telegram) Platform() model.Platform { return model.PlatformTelegram }

// bot connects on first use; NewBotAPI calls getMe.
func (t *Telegram) bot() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.api != nil {
		return t.api, nil
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(t.botToken, t.endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	api.Debug = false
	t.api = api
	return api, nil
}

func (t *Telegram) Publish(ctx context.Context, req *Request) (*Result, error) {
	if t.botToken == "" {
		return nil, fmt.Errorf("%w: TELEGRAM_BOT_TOKEN not set", ErrMissingCredentials)
	}
	if t.chatID == 0 {
		return nil, fmt.Errorf("%w: TELEGRAM_CHAT_ID not set", ErrMissingCredentials)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	api, err := t.bot()
	if err != nil {
		return nil, err
	}

	caption := req.Description
	if caption == "" {
		caption = req.Title
	}
	video := tgbotapi.NewVideo(t.chatID, tgbotapi.FilePath(req.VideoPath))
	video.Caption = caption
	video.SupportsStreaming = true
	if req.ThumbnailPath != "" {
		video.Thumb = tgbotapi.FilePath(req.ThumbnailPath)
	}

	msg, err := api.Send(video)
	if err != nil {
		return nil, fmt.Errorf("telegram sendVideo: %w", err)
	}

	res := &Result{Details: map[string]string{
		"chat_id":    fmt.Sprint(t.chatID),
		"message_id": fmt.Sprint(msg.MessageID),
	}}
	if msg.Chat != nil && msg.Chat.UserName != "" {
		res.URL = fmt.Sprintf("https://t.me/%s/%d", msg.Chat.UserName, msg.MessageID)
	}
	return res, nil
}
