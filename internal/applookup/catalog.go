// Package applookup resolves package identifiers to display names.
package applookup

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownApp is returned for identifiers the catalog has no name for.
var ErrUnknownApp = errors.New("unknown app")

var builtInNames = map[string]string{
	"com.whatsapp":               "WhatsApp",
	"org.telegram.messenger":     "Telegram",
	"jp.naver.line.android":      "LINE",
	"org.thoughtcrime.securesms": "Signal",
	"com.discord":                "Discord",
	"com.google.android.gm":      "Gmail",
	"com.fsck.k9":                "K-9 Mail",
	"com.slack":                  "Slack",
	"com.microsoft.teams":        "Teams",
	"us.zoom.videomeetings":      "Zoom",
	"com.notion.id":              "Notion",
	"com.atlassian.jira.core.ui": "Jira",
}

// Catalog is a concurrent-safe name table. It implements mask.AppLookup.
type Catalog struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewCatalog returns the built-in names with overrides applied on top.
func NewCatalog(overrides map[string]string) *Catalog {
	c := &Catalog{names: make(map[string]string, len(builtInNames)+len(overrides))}
	for source, name := range builtInNames {
		c.names[source] = name
	}
	for source, name := range overrides {
		c.Set(source, name)
	}
	return c
}

// LoadCatalog reads a YAML mapping of identifier to display name. An empty
// path yields the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read app catalog: %w", err)
	}
	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse app catalog %s: %w", path, err)
	}
	return NewCatalog(overrides), nil
}

// Set adds or replaces a name. An empty name removes the entry.
func (c *Catalog) Set(source, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name == "" {
		delete(c.names, source)
		return
	}
	c.names[source] = name
}

func (c *Catalog) DisplayNameFor(source string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[source]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownApp, source)
	}
	return name, nil
}
