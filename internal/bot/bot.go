package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"booking-bot/pkg/logger"
)

// MaxMessageLen is the hard limit the API places on a single message.
const MaxMessageLen = 4096

type Bot struct {
	API            *tgbotapi.BotAPI
	DefaultAdminID int64
	log            *zap.Logger
}

func New(token, endpoint string, defaultAdminID int64, log *zap.Logger) (*Bot, error) {
	var api *tgbotapi.BotAPI
	var err error
	if endpoint != "" {
		api, err = tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	} else {
		api, err = tgbotapi.NewBotAPI(token)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	log.Info("authorized on bot account", zap.String("username", api.Self.UserName))

	return &Bot{
		API:            api,
		DefaultAdminID: defaultAdminID,
		log:            log,
	}, nil
}

func (b *Bot) IsDefaultAdmin(userID int64) bool {
	return userID == b.DefaultAdminID
}

// SendMessage delivers text with an optional inline keyboard and returns
// the new message id, which callers record as a dialog or prompt anchor.
func (b *Bot) SendMessage(chatID int64, text string, replyMarkup interface{}) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if replyMarkup != nil {
		msg.ReplyMarkup = replyMarkup
	}

	var sent tgbotapi.Message
	err := b.withRetry(func() error {
		var sendErr error
		sent, sendErr = b.API.Send(msg)
		return sendErr
	})
	if err != nil {
		return 0, err
	}

	return sent.MessageID, nil
}

// SendLongMessage splits text that exceeds the API limit on line
// boundaries and sends the pieces in order. Keyboards are not supported
// on split messages.
func (b *Bot) SendLongMessage(chatID int64, text string) error {
	for _, part := range SplitMessage(text) {
		if _, err := b.SendMessage(chatID, part, nil); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) EditMessage(chatID int64, messageID int, text string, replyMarkup interface{}) error {
	msg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if replyMarkup != nil {
		if markup, ok := replyMarkup.(*tgbotapi.InlineKeyboardMarkup); ok {
			msg.ReplyMarkup = markup
		}
	}

	return b.withRetry(func() error {
		_, err := b.API.Send(msg)
		return err
	})
}

func (b *Bot) AnswerCallback(callbackID string, text string) error {
	callback := tgbotapi.NewCallback(callbackID, text)
	_, err := b.API.Request(callback)
	return mapError(err)
}

func (b *Bot) AnswerCallbackAlert(callbackID string, text string) error {
	callback := tgbotapi.NewCallbackWithAlert(callbackID, text)
	_, err := b.API.Request(callback)
	return mapError(err)
}

// withRetry retries transient delivery failures with a short backoff.
// Permanent failures (blocked, bad request) surface immediately as typed
// errors.
func (b *Bot) withRetry(send func() error) error {
	backoff := retry.WithMaxRetries(2, retry.NewExponential(300*time.Millisecond))

	err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		err := mapError(send())
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			b.log.Warn("transient delivery failure, retrying", zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})

	if err != nil && !IsExpected(err) {
		b.log.Error("outbound delivery failed", zap.String(logger.FieldOperation, "send"), zap.Error(err))
	}

	return err
}

// SplitMessage cuts text into API-sized chunks, preferring newline
// boundaries so list output is not broken mid-line.
func SplitMessage(text string) []string {
	if len(text) <= MaxMessageLen {
		return []string{text}
	}

	var parts []string
	for len(text) > MaxMessageLen {
		cut := strings.LastIndexByte(text[:MaxMessageLen], '\n')
		if cut <= 0 {
			cut = MaxMessageLen
		}
		parts = append(parts, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if len(text) > 0 {
		parts = append(parts, text)
	}

	return parts
}
