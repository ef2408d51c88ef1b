package heartbeat

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okapi-bot/okapi/internal/bus"
	"github.com/okapi-bot/okapi/internal/config"
)

type fakeRunner struct {
	mu      sync.Mutex
	prompts []string
	reply   string
}

func (f *fakeRunner) ProcessDirect(_ context.Context, content, _, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, content)
	return f.reply, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func alwaysActive() config.HeartbeatConfig {
	return config.HeartbeatConfig{Enabled: true, IntervalMinutes: 30, ActiveHourStart: 0, ActiveHourEnd: 24}
}

func newTestHeartbeat(t *testing.T, cfg config.HeartbeatConfig, reply string) (*Heartbeat, *fakeRunner, *bus.MessageBus, string) {
	t.Helper()
	workspace := t.TempDir()
	runner := &fakeRunner{reply: reply}
	msgBus := bus.NewMessageBus()
	hb := New(cfg, workspace, runner, msgBus, nil, nil)
	hb.Channel = "telegram"
	hb.ChatID = "42"
	return hb, runner, msgBus, workspace
}

func writeChecklist(t *testing.T, workspace, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "HEARTBEAT.md"), []byte(content), 0o644))
}

func TestTick_NoChecklistSkipsQuietly(t *testing.T) {
	hb, runner, msgBus, _ := newTestHeartbeat(t, alwaysActive(), "reply")

	hb.Tick(context.Background())

	assert.Equal(t, 0, runner.count())
	assert.Equal(t, 0, msgBus.OutboundSize())
}

func TestTick_EmptyChecklistSkips(t *testing.T) {
	hb, runner, _, workspace := newTestHeartbeat(t, alwaysActive(), "reply")
	writeChecklist(t, workspace, "   \n\n")

	hb.Tick(context.Background())
	assert.Equal(t, 0, runner.count())
}

func TestTick_DeliversReply(t *testing.T) {
	hb, runner, msgBus, workspace := newTestHeartbeat(t, alwaysActive(), "you have a meeting in 10 minutes")
	writeChecklist(t, workspace, "- check the calendar")

	hb.Tick(context.Background())

	require.Equal(t, 1, runner.count())
	assert.Contains(t, runner.prompts[0], "[HEARTBEAT at ")
	assert.Contains(t, runner.prompts[0], "- check the calendar")
	assert.Contains(t, runner.prompts[0], "HEARTBEAT_OK")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := msgBus.ConsumeOutbound(ctx)
	require.NoError(t, err)
	assert.Equal(t, "telegram", out.Channel)
	assert.Equal(t, "42", out.ChatID)
	assert.Equal(t, "you have a meeting in 10 minutes", out.Content)
}

func TestTick_SuppressesOKReply(t *testing.T) {
	hb, runner, msgBus, workspace := newTestHeartbeat(t, alwaysActive(), "HEARTBEAT_OK")
	writeChecklist(t, workspace, "- anything urgent?")

	hb.Tick(context.Background())

	assert.Equal(t, 1, runner.count())
	assert.Equal(t, 0, msgBus.OutboundSize())
}

func TestTick_SuppressesEmptyReply(t *testing.T) {
	hb, _, msgBus, workspace := newTestHeartbeat(t, alwaysActive(), "  ")
	writeChecklist(t, workspace, "- anything?")

	hb.Tick(context.Background())
	assert.Equal(t, 0, msgBus.OutboundSize())
}

func TestTick_OutsideActiveHours(t *testing.T) {
	cfg := config.HeartbeatConfig{Enabled: true, IntervalMinutes: 30, ActiveHourStart: 0, ActiveHourEnd: 0}
	hb, runner, _, workspace := newTestHeartbeat(t, cfg, "reply")
	writeChecklist(t, workspace, "- check")

	hb.Tick(context.Background())
	assert.Equal(t, 0, runner.count())
}

func TestTick_NoDeliveryTargetLogsOnly(t *testing.T) {
	hb, runner, msgBus, workspace := newTestHeartbeat(t, alwaysActive(), "something to say")
	hb.Channel = ""
	hb.ChatID = ""
	writeChecklist(t, workspace, "- check")

	hb.Tick(context.Background())
	assert.Equal(t, 1, runner.count())
	assert.Equal(t, 0, msgBus.OutboundSize())
}

func TestStart_DisabledDoesNothing(t *testing.T) {
	cfg := config.HeartbeatConfig{Enabled: false}
	hb, runner, _, workspace := newTestHeartbeat(t, cfg, "reply")
	writeChecklist(t, workspace, "- check")

	hb.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	hb.Stop()
	assert.Equal(t, 0, runner.count())
}
