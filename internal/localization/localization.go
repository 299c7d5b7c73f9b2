// Package localization renders notification keys into user-facing text.
// Catalogs are JSON files named after the language code (e.g. "en.json");
// values are fmt templates filled with the notification arguments.
package localization

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
)

// DefaultLang is used when a key is missing in the requested language.
const DefaultLang = "en"

//go:embed locales/*.json
var builtin embed.FS

// Localizer manages the translations for the application.
type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
}

// Default returns a Localizer over the built-in catalogs.
func Default() *Localizer {
	l, err := NewLocalizer(builtin, "locales")
	if err != nil {
		panic(fmt.Sprintf("localization: built-in catalogs: %v", err))
	}
	return l
}

// NewLocalizer loads every *.json catalog in dir of fsys.
func NewLocalizer(fsys fs.FS, dir string) (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
	}

	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read localization directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		data, err := fs.ReadFile(fsys, path.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return nil, fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}

		l.translations[strings.TrimSuffix(file.Name(), ".json")] = translations
	}

	return l, nil
}

// Languages lists the loaded language codes.
func (l *Localizer) Languages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	langs := make([]string, 0, len(l.translations))
	for lang := range l.translations {
		langs = append(langs, lang)
	}
	return langs
}

// GetString returns the template for key in lang, falling back to
// DefaultLang and then to the key itself.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if value, ok := l.translations[lang][key]; ok {
		return value
	}
	if value, ok := l.translations[DefaultLang][key]; ok {
		return value
	}
	return key
}

// Format renders key in lang with args.
func (l *Localizer) Format(lang, key string, args ...any) string {
	tmpl := l.GetString(lang, key)
	if len(args) == 0 || !strings.Contains(tmpl, "%") {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}
