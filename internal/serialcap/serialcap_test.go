package serialcap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/mea-sync/internal/arduino"
	"github.com/banshee-data/mea-sync/internal/monitoring"
	"github.com/banshee-data/mea-sync/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

var codes = arduino.Codes{V: 86, W: 87, X: 88, Y: 89, Z: 90}

func TestPortOptions_Normalize(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"}, opts)

	opts, err = PortOptions{BaudRate: 9600, Parity: "even", StopBits: 2}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "E", opts.Parity)

	for _, bad := range []PortOptions{{DataBits: 9}, {StopBits: 3}, {Parity: "mark"}} {
		_, err := bad.Normalize()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{Parity: "O", StopBits: 2}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.OddParity,
		StopBits: serial.TwoStopBits,
	}, mode)

	_, err = PortOptions{DataBits: 4}.SerialMode()
	assert.Error(t, err)
}

func TestCapture_FiltersMalformedLines(t *testing.T) {
	good := testutil.ArduinoLine(1000, []int{1, 2, 3}, codes.V)
	z := testutil.MultiplexLine(5, 6, 1, codes.Z)
	input := strings.Join([]string{
		"LED sketch ready",
		good,
		"3;4;90",
		"0;300;0;0;0;0;1;86",
		z,
		"",
		testutil.ArduinoLine(2000, []int{4}, codes.Y),
	}, "\n")

	var out bytes.Buffer
	stats, err := Capture(context.Background(), strings.NewReader(input), &out, codes)
	require.NoError(t, err)
	assert.Equal(t, Stats{Written: 3, Dropped: 4, Patterns: 2}, stats)

	log, err := arduino.Parse(&out, codes)
	require.NoError(t, err)
	assert.Equal(t, []int64{1000, 2000}, log.Timestamps)
}

func TestCapture_StopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, err := Capture(ctx, pr, &out, codes)
		done <- err
	}()

	_, err := io.WriteString(pw, testutil.ArduinoLine(7, []int{0}, codes.X)+"\n")
	require.NoError(t, err)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Capture did not return after cancel")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("port unplugged") }

func TestCapture_ReadError(t *testing.T) {
	_, err := Capture(context.Background(), failingReader{}, io.Discard, codes)
	assert.ErrorContains(t, err, "port unplugged")
}
