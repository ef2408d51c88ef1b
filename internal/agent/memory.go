// Package agent implements the core agent: memory, skills, context
// assembly, the tool-calling loop, and background subagents.
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MemoryStore provides layered memory under workspace/memory:
// MEMORY.md (long-term), a dated daily note (YYYY-MM-DD.md), and
// HISTORY.md (grep-searchable append log).
type MemoryStore struct {
	MemoryDir   string
	MemoryFile  string
	HistoryFile string
}

// NewMemoryStore creates a MemoryStore rooted at workspace/memory.
func NewMemoryStore(workspace string) *MemoryStore {
	dir := filepath.Join(workspace, "memory")
	os.MkdirAll(dir, 0o755)
	return &MemoryStore{
		MemoryDir:   dir,
		MemoryFile:  filepath.Join(dir, "MEMORY.md"),
		HistoryFile: filepath.Join(dir, "HISTORY.md"),
	}
}

// ReadLongTerm reads MEMORY.md.
func (m *MemoryStore) ReadLongTerm() string {
	data, err := os.ReadFile(m.MemoryFile)
	if err != nil {
		return ""
	}
	return string(data)
}

// WriteLongTerm writes MEMORY.md.
func (m *MemoryStore) WriteLongTerm(content string) error {
	return os.WriteFile(m.MemoryFile, []byte(content), 0o644)
}

// TodayNotePath returns the path of today's dated note.
func (m *MemoryStore) TodayNotePath() string {
	return filepath.Join(m.MemoryDir, time.Now().Format("2006-01-02")+".md")
}

// ReadTodayNote reads today's dated note, "" when absent.
func (m *MemoryStore) ReadTodayNote() string {
	data, err := os.ReadFile(m.TodayNotePath())
	if err != nil {
		return ""
	}
	return string(data)
}

// AppendTodayNote appends an entry to today's dated note.
func (m *MemoryStore) AppendTodayNote(entry string) error {
	f, err := os.OpenFile(m.TodayNotePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(strings.TrimRight(entry, "\n") + "\n")
	return err
}

// AppendHistory appends an entry to HISTORY.md.
func (m *MemoryStore) AppendHistory(entry string) error {
	f, err := os.OpenFile(m.HistoryFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(strings.TrimRight(entry, "\n") + "\n\n")
	return err
}

// GetMemoryContext returns formatted memory for inclusion in prompts.
// Long-term memory and today's note are each optional.
func (m *MemoryStore) GetMemoryContext() string {
	var parts []string
	if lt := m.ReadLongTerm(); lt != "" {
		parts = append(parts, fmt.Sprintf("## Long-term Memory\n%s", lt))
	}
	if today := m.ReadTodayNote(); today != "" {
		parts = append(parts, fmt.Sprintf("## Today's Notes\n%s", today))
	}
	return strings.Join(parts, "\n\n")
}
