package telegram

import "strings"

var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"#", "\\#",
	"+", "\\+",
	"-", "\\-",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

// EscapeMarkdown экранирует спецсимволы MarkdownV2 в свободном тексте.
// Применяется к подставляемым значениям (город, описание), а не к шаблонам.
func EscapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}
