package telegram

import (
	"fmt"
	"strings"

	"github.com/rewired-gh/lpwatch/internal/models"
)

const parseModeMarkdownV2 = "MarkdownV2"

// FormatEvent renders an event as message text for the given parse mode.
func FormatEvent(event *models.Event, parseMode string) string {
	var text string
	switch event.Kind {
	case models.SwapNotable:
		text = fmt.Sprintf("Swap Instruction:\nToken X: %s\nToken Y: %s\nAmount In: %d\nMin Amount Out: %d\nSignature: %s",
			deref(event.SymbolX), deref(event.SymbolY), event.AmountIn, event.MinAmountOut, event.Signature)
	case models.LpActivityDetected:
		addrs := make([]string, len(event.MatchedAddresses))
		for i, a := range event.MatchedAddresses {
			addrs[i] = a.String()
		}
		text = fmt.Sprintf("LP wallet detected:\n%s\nInstruction: %s\nSignature: %s",
			strings.Join(addrs, "\n"), event.Instruction, event.Signature)
	default:
		text = fmt.Sprintf("%s\nSignature: %s", event.Instruction, event.Signature)
	}

	if parseMode == parseModeMarkdownV2 {
		return escapeMarkdownV2(text)
	}
	return text
}

func deref(s *string) string {
	if s == nil {
		return "?"
	}
	return *s
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
