package telegram

import "testing"

func TestEscapeMarkdown(t *testing.T) {
	if got := EscapeMarkdown("A*B_C"); got != `A\*B\_C` {
		t.Fatalf("ожидали экранирование, получили %q", got)
	}
	if got := EscapeMarkdown("(1+1)=2!"); got != `\(1\+1\)\=2\!` {
		t.Fatalf("ожидали экранирование, получили %q", got)
	}
	if got := EscapeMarkdown("Казань"); got != "Казань" {
		t.Fatalf("обычный текст не должен меняться: %q", got)
	}
}
