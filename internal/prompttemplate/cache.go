// Package prompttemplate loads and caches the Lifecycle Supervisor's
// registration prompt: a per-role template with {{SESSION_ID}}/{{MEMBER_ID}}
// placeholders, read from disk and invalidated on change via fsnotify.
package prompttemplate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/corelog"
)

// cacheKey matches a cached template to the exact substitution shape it was
// rendered for: the {{MEMBER_ID}} fragment is structurally present or absent
// depending on hasMemberId, so the two cannot share a cached value.
type cacheKey struct {
	role         string
	hasMemberID  bool
}

// fallbackPrompt is returned when the on-disk template cannot be read.
const fallbackPrompt = `{"event": "register", "role": "{{ROLE}}", "sessionId": "{{SESSION_ID}}"{{MEMBER_ID_FRAGMENT}}}`

const memberIDFragment = `, "memberId": "{{MEMBER_ID}}"`

// Cache loads registration prompt templates from promptsDir/<role>.txt,
// memoizes the raw template per (role, hasMemberId), and drops memoized
// entries when the underlying file changes.
type Cache struct {
	promptsDir string
	log        *corelog.Logger

	mu      sync.Mutex
	entries map[cacheKey]string

	watcher *fsnotify.Watcher
}

// New constructs a Cache rooted at promptsDir. promptsDir may not exist yet;
// missing files simply fall back to the inline template.
func New(promptsDir string, log *corelog.Logger) *Cache {
	if log == nil {
		log = corelog.Default()
	}
	return &Cache{
		promptsDir: promptsDir,
		log:        log,
		entries:    make(map[cacheKey]string),
	}
}

// Render returns the registration prompt for role, with {{SESSION_ID}} and
// {{MEMBER_ID}} substituted. When memberID is empty, the memberId JSON
// fragment is stripped entirely rather than substituted with an empty
// string.
func (c *Cache) Render(role, sessionID, memberID string) string {
	key := cacheKey{role: role, hasMemberID: memberID != ""}

	tmpl := c.load(key, role)

	rendered := strings.ReplaceAll(tmpl, "{{ROLE}}", role)
	rendered = strings.ReplaceAll(rendered, "{{SESSION_ID}}", sessionID)
	if memberID != "" {
		rendered = strings.ReplaceAll(rendered, "{{MEMBER_ID_FRAGMENT}}", memberIDFragment)
		rendered = strings.ReplaceAll(rendered, "{{MEMBER_ID}}", memberID)
	} else {
		rendered = strings.ReplaceAll(rendered, "{{MEMBER_ID_FRAGMENT}}", "")
	}
	return rendered
}

func (c *Cache) load(key cacheKey, role string) string {
	c.mu.Lock()
	if tmpl, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return tmpl
	}
	c.mu.Unlock()

	tmpl := c.readFile(role)

	c.mu.Lock()
	c.entries[key] = tmpl
	c.mu.Unlock()
	return tmpl
}

func (c *Cache) readFile(role string) string {
	path := c.pathForRole(role)
	data, err := os.ReadFile(path)
	if err != nil {
		c.log.Debug("registration prompt file unreadable, using fallback",
			zap.Error(err))
		return fallbackPrompt
	}
	return string(data)
}

func (c *Cache) pathForRole(role string) string {
	return filepath.Join(c.promptsDir, role+".txt")
}

// invalidate drops every cached entry for role, regardless of hasMemberId.
func (c *Cache) invalidate(role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.role == role {
			delete(c.entries, k)
		}
	}
}

// Watch starts an fsnotify watch on promptsDir, invalidating a role's cached
// template whenever its file is written, created, or removed. Blocks until
// ctx is cancelled; call as a goroutine.
func (c *Cache) Watch(ctx context.Context) error {
	if err := os.MkdirAll(c.promptsDir, 0o755); err != nil {
		return fmt.Errorf("prompttemplate: ensure prompts dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("prompttemplate: new watcher: %w", err)
	}
	if err := w.Add(c.promptsDir); err != nil {
		_ = w.Close()
		return fmt.Errorf("prompttemplate: watch prompts dir: %w", err)
	}

	c.mu.Lock()
	c.watcher = w
	c.mu.Unlock()

	go c.watchLoop(ctx, w)
	return nil
}

func (c *Cache) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			base := filepath.Base(event.Name)
			role := strings.TrimSuffix(base, filepath.Ext(base))
			c.invalidate(role)
			c.log.Debug("registration prompt cache invalidated", zap.String("role", role))
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			c.log.Warn("prompt template watcher error", zap.Error(err))
		}
	}
}
