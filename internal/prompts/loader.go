// Package prompts holds the embedded prompt and message templates.
// Templates live in JSON files keyed by name; language variants use a
// ".<lang>" suffix on the key (for example "image-prompt-system.fr").
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

//go:embed *.json
var promptFiles embed.FS

// Embedded template files.
const (
	PipelineFile = "pipeline.json"
	MessagesFile = "messages.json"
)

var (
	cache   = make(map[string]map[string]string)
	cacheMu sync.RWMutex
)

// Get retrieves a template by filename and key.
func Get(filename, key string) (string, error) {
	templates, err := loadFile(filename)
	if err != nil {
		return "", err
	}

	tmpl, exists := templates[key]
	if !exists {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return tmpl, nil
}

// MustGet retrieves a template, panicking if it is missing.
func MustGet(filename, key string) string {
	tmpl, err := Get(filename, key)
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	return tmpl
}

// Localized retrieves the variant of key for language, falling back to the
// base language tag ("fr" for "fr-CA") and then to the unsuffixed key.
func Localized(filename, key, language string) (string, error) {
	lang := strings.ToLower(strings.TrimSpace(language))
	candidates := make([]string, 0, 3)
	if lang != "" {
		candidates = append(candidates, key+"."+lang)
		if base, _, found := strings.Cut(lang, "-"); found {
			candidates = append(candidates, key+"."+base)
		}
	}
	candidates = append(candidates, key)

	for _, candidate := range candidates {
		if tmpl, err := Get(filename, candidate); err == nil {
			return tmpl, nil
		}
	}
	return "", fmt.Errorf("prompt key %q not found in %s for language %q", key, filename, language)
}

// Render looks up a localized template and fills its placeholders.
// Missing templates render as an empty string.
func Render(filename, key, language string, data map[string]string) string {
	tmpl, err := Localized(filename, key, language)
	if err != nil {
		return ""
	}
	return Format(tmpl, data)
}

// Format replaces placeholders of the form {{.Key}} with values from data.
// Unknown placeholders are left untouched.
func Format(template string, data map[string]string) string {
	result := template
	for key, value := range data {
		result = strings.ReplaceAll(result, "{{."+key+"}}", value)
	}
	return result
}

func loadFile(filename string) (map[string]string, error) {
	cacheMu.RLock()
	if templates, exists := cache[filename]; exists {
		cacheMu.RUnlock()
		return templates, nil
	}
	cacheMu.RUnlock()

	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}

	var templates map[string]string
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	cacheMu.Lock()
	cache[filename] = templates
	cacheMu.Unlock()

	return templates, nil
}

// ClearCache clears the parsed template cache. Useful for testing.
func ClearCache() {
	cacheMu.Lock()
	cache = make(map[string]map[string]string)
	cacheMu.Unlock()
}

// List returns the keys of a file in sorted order.
func List(filename string) ([]string, error) {
	templates, err := loadFile(filename)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(templates))
	for key := range templates {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
