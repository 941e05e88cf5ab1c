package telegram

import (
	"fmt"
	"strings"
	"testing"
)

func dailyReport(city string, days int) string {
	var b strings.Builder
	for day := 1; day <= days; day++ {
		fmt.Fprintf(&b, "🌤 Погода в %s, день %d\n", city, day)
		b.WriteString("🌡 Температура: 20.0 °C (ощущается как 18.5 °C)\n")
		b.WriteString("💧 Влажность: 55%\n")
		b.WriteString("🔽 Давление: 1013.2 гПа\n")
		b.WriteString("💨 Ветер: 5.0 м/с\n\n")
	}
	return b.String()
}

func TestSplitMessageKeepsShortReport(t *testing.T) {
	report := dailyReport("Казань", 3)
	parts := SplitMessage(report)
	if len(parts) != 1 {
		t.Fatalf("короткий отчёт должен уходить одним сообщением, получили %d", len(parts))
	}
	if parts[0] != strings.TrimSpace(report) {
		t.Fatalf("текст отчёта не должен меняться:\n%s", parts[0])
	}
}

func TestSplitMessagePrefersLineBoundaries(t *testing.T) {
	report := dailyReport("Санкт-Петербург", 60)
	parts := SplitMessage(report)
	if len(parts) < 2 {
		t.Fatalf("длинный отчёт должен резаться на части, получили %d", len(parts))
	}
	for i, part := range parts {
		if length := len([]rune(part)); length > messageLimit {
			t.Fatalf("часть %d превышает лимит: %d рун", i, length)
		}
		if strings.HasPrefix(part, "💧") || strings.HasPrefix(part, "🔽") {
			t.Fatalf("часть %d начинается с середины блока:\n%s", i, part)
		}
		for _, line := range strings.Split(part, "\n") {
			if line == "" {
				continue
			}
			if !strings.ContainsAny(line, ":") && !strings.HasPrefix(line, "🌤") {
				t.Fatalf("строка отчёта порвана: %q", line)
			}
		}
	}
}

func TestSplitMessageHardBreakWithoutNewlines(t *testing.T) {
	text := strings.Repeat("ж", 3*messageLimit)
	parts := SplitMessage(text)
	if len(parts) != 3 {
		t.Fatalf("сплошной текст режется по лимиту, ожидали 3 части, получили %d", len(parts))
	}
	var total int
	for i, part := range parts {
		length := len([]rune(part))
		if length > messageLimit {
			t.Fatalf("часть %d превышает лимит: %d рун", i, length)
		}
		total += length
	}
	if total != 3*messageLimit {
		t.Fatalf("при разрезе без переводов строк текст не должен теряться: %d рун", total)
	}
}

func TestSplitMessageEmpty(t *testing.T) {
	if parts := SplitMessage("   \n  "); len(parts) != 0 {
		t.Fatalf("пустой текст не должен давать частей, получили %d", len(parts))
	}
}
