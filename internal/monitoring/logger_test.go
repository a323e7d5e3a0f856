package monitoring

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogger(t *testing.T) {
	// Save original logger
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")

	if !called {
		t.Error("Custom logger was not called")
	}

	// Setting nil installs a no-op logger; this should not panic.
	SetLogger(nil)
	Logf("test message")
}

func capture(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	originalLevel := CurrentLevel()
	t.Cleanup(func() {
		Logf = original
		SetLevel(originalLevel)
	})

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestLevels(t *testing.T) {
	lines := capture(t)
	SetLevel(LevelWarn)

	Debugf("d %d", 1)
	Infof("i %d", 2)
	Warnf("w %d", 3)
	Errorf("e %d", 4)

	assert.Equal(t, []string{"[WARNING] w 3", "[ERROR] e 4"}, *lines)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"Warning", LevelWarn, false},
		{"warn", LevelWarn, false},
		{"ERROR", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetup(t *testing.T) {
	capture(t)
	dir := t.TempDir()
	start := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	closer, path, err := Setup(filepath.Join(dir, "logs"), "debug", start)
	require.NoError(t, err)
	assert.Equal(t, "sync_log_2024-05-06_07-08-09.log", filepath.Base(path))
	assert.Equal(t, LevelDebug, CurrentLevel())

	Debugf("hello %s", "file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[DEBUG] hello file"))
}

func TestSetup_BadLevel(t *testing.T) {
	_, _, err := Setup(t.TempDir(), "loud", time.Now())
	assert.Error(t, err)
}
