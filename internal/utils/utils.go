// Package utils provides shared helper functions.
package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// DataPath returns the okapi data directory (~/.okapi), creating it if
// needed.
func DataPath() string {
	home, _ := os.UserHomeDir()
	p := filepath.Join(home, ".okapi")
	os.MkdirAll(p, 0o755)
	return p
}

// WorkspacePath resolves the workspace directory, expanding ~ and
// defaulting to <data>/workspace.
func WorkspacePath(workspace string) string {
	if workspace != "" {
		if strings.HasPrefix(workspace, "~") {
			home, _ := os.UserHomeDir()
			workspace = filepath.Join(home, workspace[1:])
		}
		os.MkdirAll(workspace, 0o755)
		return workspace
	}
	p := filepath.Join(DataPath(), "workspace")
	os.MkdirAll(p, 0o755)
	return p
}

// TruncateString truncates s to maxLen, appending suffix when truncated.
func TruncateString(s string, maxLen int, suffix string) string {
	if len(s) <= maxLen {
		return s
	}
	if suffix == "" {
		suffix = "..."
	}
	cutoff := maxLen - len(suffix)
	if cutoff < 0 {
		cutoff = 0
	}
	return s[:cutoff] + suffix
}

// SafeFilename replaces characters that are unsafe in file names.
func SafeFilename(name string) string {
	const unsafe = `<>:"/\|?*`
	for _, c := range unsafe {
		name = strings.ReplaceAll(name, string(c), "_")
	}
	return strings.TrimSpace(name)
}

// SplitSessionKey splits "channel:chat_id" into its two parts. The chat
// ID may itself contain colons (system-channel origin encoding).
func SplitSessionKey(key string) (channel, chatID string, ok bool) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
