package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

//go:embed locales/*.json
var localeFS embed.FS

const fallbackLang = "en"

// Localizer отдаёт локализованные тексты с подстановкой плейсхолдеров {name}.
type Localizer struct {
	messages map[string]map[string]string
}

// New загружает встроенные словари локализации.
func New() (*Localizer, error) {
	entries, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("чтение словарей: %w", err)
	}
	messages := make(map[string]map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		lang := strings.TrimSuffix(name, path.Ext(name))
		data, err := localeFS.ReadFile(path.Join("locales", name))
		if err != nil {
			return nil, fmt.Errorf("чтение словаря %s: %w", name, err)
		}
		var dict map[string]string
		if err := json.Unmarshal(data, &dict); err != nil {
			return nil, fmt.Errorf("разбор словаря %s: %w", name, err)
		}
		messages[lang] = dict
	}
	return &Localizer{messages: messages}, nil
}

// MustNew загружает словари и паникует при ошибке.
func MustNew() *Localizer {
	l, err := New()
	if err != nil {
		panic(err)
	}
	return l
}

// Text возвращает текст по ключу для языка. Порядок запасных вариантов:
// запрошенный язык, английский, литерал "key not found".
func (l *Localizer) Text(lang, key string, params map[string]string) string {
	text, ok := l.lookup(lang, key)
	if !ok {
		return "key not found"
	}
	return substitute(text, params)
}

// Has сообщает, известен ли ключ хотя бы одному словарю.
func (l *Localizer) Has(lang, key string) bool {
	_, ok := l.lookup(lang, key)
	return ok
}

// Description возвращает локализованное описание погоды по ключу провайдера.
// Если перевода нет, возвращается сырое описание.
func (l *Localizer) Description(lang, key, raw string) string {
	if key != "" {
		if text, ok := l.lookup(lang, "weather_desc_"+key); ok {
			return text
		}
	}
	return raw
}

func (l *Localizer) lookup(lang, key string) (string, bool) {
	if dict, ok := l.messages[lang]; ok {
		if text, ok := dict[key]; ok {
			return text, true
		}
	}
	if dict, ok := l.messages[fallbackLang]; ok {
		if text, ok := dict[key]; ok {
			return text, true
		}
	}
	return "", false
}

// substitute подставляет параметры вида {name}. Неизвестные плейсхолдеры
// остаются в тексте как есть.
func substitute(text string, params map[string]string) string {
	if len(params) == 0 {
		return text
	}
	pairs := make([]string, 0, len(params)*2)
	for name, value := range params {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
