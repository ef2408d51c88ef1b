package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionAddMessage(t *testing.T) {
	s := &Session{Key: "telegram:123"}
	s.AddMessage("user", "hello")
	s.AddMessage("assistant", "hi there")

	require.Len(t, s.Messages, 2)
	assert.Equal(t, "user", s.Messages[0].Role)
	assert.Equal(t, "hello", s.Messages[0].Content)
	assert.NotEmpty(t, s.Messages[0].Timestamp)
	assert.Equal(t, "assistant", s.Messages[1].Role)
}

func TestGetHistoryWindow(t *testing.T) {
	s := &Session{Key: "k"}
	for i := 0; i < 10; i++ {
		s.AddMessage("user", string(rune('a'+i)))
	}

	history := s.GetHistory(3)
	require.Len(t, history, 3)
	assert.Equal(t, "h", history[0]["content"])
	assert.Equal(t, "j", history[2]["content"])

	// Smaller than window returns everything
	assert.Len(t, s.GetHistory(50), 10)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	s := m.GetOrCreate("telegram:42")
	s.AddMessage("user", "remember this")
	s.AddMessage("assistant", "noted")
	s.Metadata = map[string]any{"origin": "test"}
	require.NoError(t, m.Save(s))

	// Force a disk read
	m.Invalidate("telegram:42")
	loaded := m.GetOrCreate("telegram:42")

	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "user", loaded.Messages[0].Role)
	assert.Equal(t, "remember this", loaded.Messages[0].Content)
	assert.Equal(t, "noted", loaded.Messages[1].Content)
	assert.Equal(t, "test", loaded.Metadata["origin"])
	assert.WithinDuration(t, s.CreatedAt, loaded.CreatedAt, time.Second)
}

func TestSaveLoadLargeMessage(t *testing.T) {
	m := NewManager(t.TempDir())

	// Well past any line-scanner token limit
	big := strings.Repeat("lorem ipsum ", 20000)
	s := m.GetOrCreate("cli:direct")
	s.AddMessage("user", "summarize the report")
	s.AddMessage("assistant", big)
	require.NoError(t, m.Save(s))

	m.Invalidate("cli:direct")
	loaded := m.GetOrCreate("cli:direct")

	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, big, loaded.Messages[1].Content)
}

func TestGetOrCreateCaches(t *testing.T) {
	m := NewManager(t.TempDir())
	a := m.GetOrCreate("slack:C1")
	b := m.GetOrCreate("slack:C1")
	assert.Same(t, a, b)
}

func TestClear(t *testing.T) {
	s := &Session{Key: "k"}
	s.AddMessage("user", "x")
	s.Clear()
	assert.Empty(t, s.Messages)
}

func TestListSessions(t *testing.T) {
	m := NewManager(t.TempDir())

	for _, key := range []string{"telegram:1", "slack:C9"} {
		s := m.GetOrCreate(key)
		s.AddMessage("user", "hi")
		require.NoError(t, m.Save(s))
	}

	list := m.ListSessions()
	require.Len(t, list, 2)
	keys := []string{list[0]["key"], list[1]["key"]}
	assert.Contains(t, keys, "telegram:1")
	assert.Contains(t, keys, "slack:C9")
	assert.NotEmpty(t, list[0]["created_at"])
}

func TestLoadMissingReturnsFresh(t *testing.T) {
	m := NewManager(t.TempDir())
	s := m.GetOrCreate("never:seen")
	assert.Empty(t, s.Messages)
	assert.False(t, s.CreatedAt.IsZero())
}
