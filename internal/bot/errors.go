package bot

import (
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var (
	// ErrBlockedByUser means the user blocked the bot or deleted the
	// chat; the account should be marked blocked and its jobs removed.
	ErrBlockedByUser = errors.New("blocked by user")

	// ErrNotModified is the API's answer to an edit that changes
	// nothing. Harmless for idempotent anchor edits.
	ErrNotModified = errors.New("message not modified")

	// ErrMessageNotFound means the anchor message no longer exists.
	ErrMessageNotFound = errors.New("message not found")

	errTransient = errors.New("transient delivery error")
)

// mapError translates raw API errors into the typed set the rest of the
// code branches on.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	switch {
	case apiErr.Code == 403:
		return ErrBlockedByUser
	case apiErr.Code == 429 || apiErr.Code >= 500:
		return errTransient
	case strings.Contains(apiErr.Message, "message is not modified"):
		return ErrNotModified
	case strings.Contains(apiErr.Message, "message to edit not found"):
		return ErrMessageNotFound
	default:
		return err
	}
}

// IsTransient reports whether the failure is worth a retry.
func IsTransient(err error) bool {
	return errors.Is(err, errTransient)
}

// IsExpected reports whether the failure is part of normal operation and
// should not be logged as an error.
func IsExpected(err error) bool {
	return errors.Is(err, ErrNotModified) || errors.Is(err, ErrBlockedByUser) ||
		errors.Is(err, ErrMessageNotFound)
}
