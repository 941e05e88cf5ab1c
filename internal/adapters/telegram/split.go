package telegram

import "strings"

// Лимит Telegram на длину одного сообщения, в рунах.
const messageLimit = 4096

// SplitMessage режет длинный текст на части в пределах лимита Telegram.
// Разрез предпочитает последний перевод строки, чтобы строки отчёта
// о погоде не рвались посередине.
func SplitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	parts := make([]string, 0, len(runes)/messageLimit+1)
	for len(runes) > 0 {
		if len(runes) <= messageLimit {
			if chunk := strings.Trim(string(runes), "\n"); chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}

		cut := messageLimit
		for i := messageLimit; i > 0; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}

		if chunk := strings.Trim(string(runes[:cut]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	return parts
}
