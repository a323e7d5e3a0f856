package testutil

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssertNoError_NilErr(t *testing.T) {
	fakeT := &testing.T{}
	AssertNoError(fakeT, nil)
	if fakeT.Failed() {
		t.Error("expected no failure for nil error")
	}
}

func TestAssertError_WithErr(t *testing.T) {
	fakeT := &testing.T{}
	AssertError(fakeT, errors.New("something wrong"))
	if fakeT.Failed() {
		t.Error("expected no failure when error is present")
	}
}

func TestWithIntervals(t *testing.T) {
	assert.Equal(t, []int64{5, 15, 12}, WithIntervals(5, 10, -3))
	assert.Equal(t, []int64{7}, WithIntervals(7))
}

func TestRegularStream(t *testing.T) {
	assert.Equal(t, []int64{100, 110, 120}, RegularStream(100, 10, 3))
}

func TestArduinoLine(t *testing.T) {
	assert.Equal(t, "0;1;1;0;0;0;9;8;86", ArduinoLine(257, []int{9, 8}, 86))
}

func TestMultiplexLine(t *testing.T) {
	line := MultiplexLine(1, 2, 7, 90)
	fields := strings.Split(line, ";")
	assert.Len(t, fields, 16)
	assert.Equal(t, "7", fields[9])
	assert.Equal(t, "90", fields[15])
}
