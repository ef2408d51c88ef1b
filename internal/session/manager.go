// Package session implements conversation history with JSONL persistence.
// One file per session key: a metadata line followed by one line per
// message. Files are loaded once, cached in memory, and fully rewritten
// on each save.
package session

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/okapi-bot/okapi/internal/utils"
)

// Message is a single conversation message.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`

	// Marker for the metadata line in JSONL files
	Type string `json:"_type,omitempty"`
}

// Session holds one conversation's message history.
type Session struct {
	Key       string         `json:"key"`
	Messages  []Message      `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AddMessage appends a message to the session.
func (s *Session) AddMessage(role, content string) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	s.UpdatedAt = time.Now()
}

// GetHistory returns the last maxMessages messages in LLM format.
// Older entries are discarded first; no truncation warning is surfaced.
func (s *Session) GetHistory(maxMessages int) []map[string]string {
	start := 0
	if len(s.Messages) > maxMessages {
		start = len(s.Messages) - maxMessages
	}
	result := make([]map[string]string, 0, len(s.Messages)-start)
	for _, m := range s.Messages[start:] {
		result = append(result, map[string]string{
			"role":    m.Role,
			"content": m.Content,
		})
	}
	return result
}

// Clear removes all messages.
func (s *Session) Clear() {
	s.Messages = nil
	s.UpdatedAt = time.Now()
}

// Manager owns all Session objects and their persisted representation.
type Manager struct {
	sessionsDir string
	mu          sync.RWMutex
	cache       map[string]*Session
}

// NewManager creates a session manager storing under dataDir/sessions.
func NewManager(dataDir string) *Manager {
	dir := filepath.Join(dataDir, "sessions")
	os.MkdirAll(dir, 0o755)
	return &Manager{
		sessionsDir: dir,
		cache:       make(map[string]*Session),
	}
}

// GetOrCreate returns the cached session for key, loading it from disk
// or creating it lazily.
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.cache[key]; ok {
		return s
	}

	s := m.load(key)
	if s == nil {
		now := time.Now()
		s = &Session{Key: key, CreatedAt: now, UpdatedAt: now}
	}
	m.cache[key] = s
	return s
}

// Save persists a session to disk as JSONL, rewriting the whole file.
func (m *Manager) Save(s *Session) error {
	f, err := os.Create(m.sessionPath(s.Key))
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	meta := map[string]any{
		"_type":      "metadata",
		"created_at": s.CreatedAt.Format(time.RFC3339),
		"updated_at": s.UpdatedAt.Format(time.RFC3339),
	}
	if len(s.Metadata) > 0 {
		meta["metadata"] = s.Metadata
	}
	line, _ := json.Marshal(meta)
	w.Write(line)
	w.WriteByte('\n')

	for _, msg := range s.Messages {
		line, _ := json.Marshal(msg)
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return err
	}

	m.mu.Lock()
	m.cache[s.Key] = s
	m.mu.Unlock()
	return nil
}

// Invalidate removes a session from the in-memory cache.
func (m *Manager) Invalidate(key string) {
	m.mu.Lock()
	delete(m.cache, key)
	m.mu.Unlock()
}

// ListSessions returns summary info about all stored sessions.
func (m *Manager) ListSessions() []map[string]string {
	var result []map[string]string

	entries, err := os.ReadDir(m.sessionsDir)
	if err != nil {
		return result
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		path := filepath.Join(m.sessionsDir, entry.Name())
		f, err := os.Open(path)
		if err != nil {
			continue
		}

		scanner := bufio.NewScanner(f)
		if scanner.Scan() {
			var meta map[string]any
			if json.Unmarshal(scanner.Bytes(), &meta) == nil && meta["_type"] == "metadata" {
				key := strings.TrimSuffix(entry.Name(), ".jsonl")
				key = strings.ReplaceAll(key, "_", ":")
				info := map[string]string{"key": key, "path": path}
				if v, ok := meta["created_at"].(string); ok {
					info["created_at"] = v
				}
				if v, ok := meta["updated_at"].(string); ok {
					info["updated_at"] = v
				}
				result = append(result, info)
			}
		}
		f.Close()
	}
	return result
}

func (m *Manager) sessionPath(key string) string {
	safe := utils.SafeFilename(strings.ReplaceAll(key, ":", "_"))
	return filepath.Join(m.sessionsDir, safe+".jsonl")
}

func (m *Manager) load(key string) *Session {
	// Read whole-file rather than line-scanning: message lines can be
	// arbitrarily long (large assistant replies) and a scanner's token
	// limit would silently drop them.
	data, err := os.ReadFile(m.sessionPath(key))
	if err != nil {
		return nil
	}

	var msgs []Message
	var createdAt, updatedAt time.Time
	var metadata map[string]any

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var raw map[string]any
		if json.Unmarshal([]byte(line), &raw) != nil {
			continue
		}

		if raw["_type"] == "metadata" {
			if v, ok := raw["created_at"].(string); ok {
				createdAt, _ = time.Parse(time.RFC3339, v)
			}
			if v, ok := raw["updated_at"].(string); ok {
				updatedAt, _ = time.Parse(time.RFC3339, v)
			}
			if v, ok := raw["metadata"].(map[string]any); ok {
				metadata = v
			}
			continue
		}

		var msg Message
		if json.Unmarshal([]byte(line), &msg) == nil {
			msgs = append(msgs, msg)
		}
	}

	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	return &Session{
		Key:       key,
		Messages:  msgs,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Metadata:  metadata,
	}
}
