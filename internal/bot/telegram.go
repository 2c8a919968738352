package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
)

// Telegram is the Messenger backed by the Bot API with long polling.
type Telegram struct {
	api *tgbotapi.BotAPI
	log zerolog.Logger
}

func NewTelegram(token string, log zerolog.Logger) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, clierr.New(clierr.CodeUsage, "telegram token is required")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeAuth, "connect to telegram", err)
	}
	log.Info().Str("bot", api.Self.UserName).Msg("authorized on telegram")
	return &Telegram{api: api, log: log}, nil
}

func (t *Telegram) Send(_ context.Context, chatID int64, text string, buttons [][]Button) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(buttons) > 0 {
		msg.ReplyMarkup = keyboard(buttons)
	}
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

func (t *Telegram) Edit(_ context.Context, chatID int64, messageID int, text string) error {
	if _, err := t.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

func (t *Telegram) Delete(_ context.Context, chatID int64, messageID int) error {
	if _, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (t *Telegram) AnswerCallback(_ context.Context, callbackID, text string) error {
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// Run long-polls for updates and hands them to handle. Updates from one chat
// are handled in the order they arrived; chats do not wait on each other. It
// returns after ctx is done and queued updates finish.
func (t *Telegram) Run(ctx context.Context, handle func(context.Context, Update)) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := t.api.GetUpdatesChan(cfg)

	d := newDispatcher(handle, t.log)
	defer d.wait()
	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return
		case raw, ok := <-updates:
			if !ok {
				return
			}
			if u, ok := FromTelegram(raw); ok {
				d.dispatch(ctx, u)
			}
		}
	}
}

// FromTelegram keeps the parts of an update the controller understands.
func FromTelegram(raw tgbotapi.Update) (Update, bool) {
	switch {
	case raw.CallbackQuery != nil:
		cb := raw.CallbackQuery
		if cb.Message == nil || cb.Message.Chat == nil {
			return Update{}, false
		}
		return Update{
			ChatID:       cb.Message.Chat.ID,
			MessageID:    cb.Message.MessageID,
			CallbackID:   cb.ID,
			CallbackData: cb.Data,
		}, true
	case raw.Message != nil:
		msg := raw.Message
		if msg.Chat == nil || msg.Text == "" {
			return Update{}, false
		}
		return Update{ChatID: msg.Chat.ID, MessageID: msg.MessageID, Text: msg.Text}, true
	default:
		return Update{}, false
	}
}

func keyboard(buttons [][]Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		out := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			out = append(out, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, out)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
