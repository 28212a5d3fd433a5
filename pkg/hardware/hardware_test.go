package hardware

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePort struct {
	rx       []byte
	written  []byte
	timeouts []time.Duration
	resets   int
	closes   int
}

func (p *fakePort) Read(b []byte) (int, error) {
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.resets++
	p.rx = nil
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeouts = append(p.timeouts, t)
	return nil
}

func (p *fakePort) Close() error {
	p.closes++
	return nil
}

func TestSerialPort(t *testing.T) {
	t.Run("Available Keeps Peeked Bytes", func(t *testing.T) {
		fp := &fakePort{rx: []byte{1, 2, 3}}
		sp, err := newSerialPort("/dev/ttyS0", fp, 50*time.Millisecond)
		require.NoError(t, err)

		n, err := sp.Available()
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, []time.Duration{50 * time.Millisecond, availablePeek, 50 * time.Millisecond}, fp.timeouts)

		buf := make([]byte, 2)
		k, _ := sp.Read(buf)
		assert.Equal(t, []byte{1, 2}, buf[:k])
		k, _ = sp.Read(buf)
		assert.Equal(t, []byte{3}, buf[:k])
		k, _ = sp.Read(buf)
		assert.Equal(t, 0, k)
	})

	t.Run("Flush Clears Pending", func(t *testing.T) {
		fp := &fakePort{rx: []byte{7}}
		sp, _ := newSerialPort("/dev/ttyS0", fp, DefaultReadTimeout)
		_, _ = sp.Available()
		require.NoError(t, sp.FlushInput())
		n, _ := sp.Available()
		assert.Equal(t, 0, n)
		assert.Equal(t, 1, fp.resets)
	})

	t.Run("Close Once", func(t *testing.T) {
		fp := &fakePort{}
		sp, _ := newSerialPort("/dev/ttyS0", fp, DefaultReadTimeout)
		require.NoError(t, sp.Close())
		require.NoError(t, sp.Close())
		assert.Equal(t, 1, fp.closes)
		_, err := sp.Write([]byte{1})
		assert.Error(t, err)
	})
}

func TestOpenSerialValidation(t *testing.T) {
	if _, err := OpenSerial("", 9600, 0); err == nil {
		t.Error("Expected error for empty port name")
	}
	if _, err := OpenSerial("/dev/ttyS0", 0, 0); err == nil {
		t.Error("Expected error for zero baud rate")
	}
}

func TestSysfsLine(t *testing.T) {
	root := t.TempDir()
	pinDir := filepath.Join(root, "gpio22")
	require.NoError(t, os.MkdirAll(pinDir, 0755))

	line, err := newSysfsLineAt(root, 22)
	require.NoError(t, err)

	read := func(attr string) string {
		data, err := os.ReadFile(filepath.Join(pinDir, attr))
		require.NoError(t, err)
		return strings.TrimSpace(string(data))
	}

	assert.Equal(t, "out", read("direction"))
	assert.Equal(t, "0", read("value"))

	require.NoError(t, line.Set(true))
	assert.Equal(t, "1", read("value"))

	require.NoError(t, line.Close())
	assert.Equal(t, "in", read("direction"))
	assert.Error(t, line.Set(false))
	assert.NoError(t, line.Close())

	// the pin was exported by someone else, so it stays exported
	_, err = os.Stat(filepath.Join(root, "unexport"))
	assert.True(t, os.IsNotExist(err))
}

func TestSysfsUnavailable(t *testing.T) {
	if _, err := newSysfsLineAt(filepath.Join(t.TempDir(), "missing"), 22); err == nil {
		t.Error("Expected error when sysfs GPIO is missing")
	}
}

func TestOpen(t *testing.T) {
	t.Run("Mock Backend", func(t *testing.T) {
		rio, err := Open(IOConfig{Backend: BackendMock, M0Pin: 22, M1Pin: 27})
		require.NoError(t, err)
		require.NotNil(t, rio.Simulator)
		assert.Same(t, rio.Simulator.Serial, rio.Port)

		require.NoError(t, rio.Close())
		assert.True(t, rio.Simulator.Serial.Closed())
		assert.Equal(t, 1, rio.Simulator.M0.Closes())
	})

	t.Run("Unknown Backend", func(t *testing.T) {
		_, err := Open(IOConfig{Backend: "wiringpi"})
		assert.Error(t, err)
	})
}
