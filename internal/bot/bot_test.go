package bot

import (
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestSplitMessageShortTextUntouched(t *testing.T) {
	parts := SplitMessage("hello")
	if len(parts) != 1 || parts[0] != "hello" {
		t.Errorf("got %q", parts)
	}
}

func TestSplitMessagePrefersLineBoundaries(t *testing.T) {
	line := strings.Repeat("x", 100)
	text := strings.Repeat(line+"\n", 60)

	parts := SplitMessage(text)
	if len(parts) < 2 {
		t.Fatalf("expected a split, got %d parts", len(parts))
	}
	for i, p := range parts {
		if len(p) > MaxMessageLen {
			t.Errorf("part %d exceeds limit: %d", i, len(p))
		}
		for _, l := range strings.Split(strings.TrimRight(p, "\n"), "\n") {
			if len(l) != 100 && l != "" {
				t.Errorf("part %d broke a line: %d chars", i, len(l))
			}
		}
	}
}

func TestSplitMessageHandlesUnbreakableText(t *testing.T) {
	text := strings.Repeat("x", MaxMessageLen+10)

	parts := SplitMessage(text)
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	if len(parts[0]) != MaxMessageLen || len(parts[1]) != 10 {
		t.Errorf("part sizes = %d, %d", len(parts[0]), len(parts[1]))
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"blocked", &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}, ErrBlockedByUser},
		{"not modified", &tgbotapi.Error{Code: 400, Message: "Bad Request: message is not modified"}, ErrNotModified},
		{"edit target gone", &tgbotapi.Error{Code: 400, Message: "Bad Request: message to edit not found"}, ErrMessageNotFound},
		{"rate limited", &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}, errTransient},
		{"server error", &tgbotapi.Error{Code: 502, Message: "Bad Gateway"}, errTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapError(tt.in); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
