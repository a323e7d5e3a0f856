package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mea-sync/internal/monitoring"
	"github.com/banshee-data/mea-sync/internal/serialcap"
	"github.com/banshee-data/mea-sync/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

const testConfig = `
[paths]
path_led_dir = "led"
path_h5_dir = "h5"
path_to_results = "results"

[parameters]
threshold = 1000

[arduino.bytes]
BYTE_V = 86
BYTE_W = 87
BYTE_X = 88
BYTE_Y = 89
BYTE_Z = 90

[handshake.start_sequences]
hs_start = [10000, 20000, 10000]

[handshake.stop_sequences]
hs_stop = [30000, 30000, 5000]
`

// fakePort replays data and then fails with err (io.EOF for a clean close).
type fakePort struct {
	r      io.Reader
	err    error
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if err == io.EOF {
		return n, p.err
	}
	return n, err
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func setup(t *testing.T) options {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o644))
	return options{port: "/dev/fake", baud: 9600, out: filepath.Join(dir, "led.txt"), configPath: cfgPath}
}

func opener(p *fakePort) portOpener {
	return func(string, serialcap.PortOptions) (io.ReadCloser, error) { return p, nil }
}

func TestRun_CapturesUntilPortCloses(t *testing.T) {
	opts := setup(t)
	line := testutil.ArduinoLine(1000, []int{1}, 86)
	port := &fakePort{r: strings.NewReader("boot\n" + line + "\n"), err: io.EOF}

	var out bytes.Buffer
	assert.Equal(t, 0, run(context.Background(), opts, opener(port), &out))
	assert.Equal(t, "wrote 1 lines (1 pattern lines), dropped 1\n", out.String())
	assert.True(t, port.closed)

	data, err := os.ReadFile(opts.out)
	require.NoError(t, err)
	assert.Equal(t, line+"\n", string(data))
}

func TestRun_ReadErrorExitsNonZero(t *testing.T) {
	opts := setup(t)
	port := &fakePort{r: strings.NewReader(testutil.ArduinoLine(1000, []int{1}, 86) + "\n"), err: errors.New("device unplugged")}

	var out bytes.Buffer
	assert.Equal(t, 1, run(context.Background(), opts, opener(port), &out))
	assert.True(t, port.closed)
}

func TestRun_OutputOpenedBeforePort(t *testing.T) {
	opts := setup(t)
	opts.out = filepath.Join(t.TempDir(), "missing", "led.txt")

	opened := false
	open := func(string, serialcap.PortOptions) (io.ReadCloser, error) {
		opened = true
		return &fakePort{r: strings.NewReader(""), err: io.EOF}, nil
	}
	assert.Equal(t, 1, run(context.Background(), opts, open, &bytes.Buffer{}))
	assert.False(t, opened)
}

func TestRun_RequiresOutput(t *testing.T) {
	opts := setup(t)
	opts.out = ""
	assert.Equal(t, 2, run(context.Background(), opts, opener(&fakePort{}), &bytes.Buffer{}))
}
