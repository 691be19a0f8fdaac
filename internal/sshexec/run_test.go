package sshexec

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runPump(stdout io.Reader, wait func() error) ([]string, int) {
	lines := make(chan string, streamBuffer)
	exit := make(chan int, 1)
	go pump(stdout, wait, lines, exit)

	var got []string
	for l := range lines {
		got = append(got, l)
	}
	return got, <-exit
}

func TestPumpCleanExit(t *testing.T) {
	got, rc := runPump(strings.NewReader("a\nb\n"), func() error { return nil })

	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 0, rc)
}

func TestPumpReadFailureInjectsSingleErrorLine(t *testing.T) {
	stdout := io.MultiReader(
		strings.NewReader("a\nb\n"),
		iotest.ErrReader(errors.New("connection reset by peer")),
	)
	got, rc := runPump(stdout, func() error { return nil })

	require.Len(t, got, 3, "delivered lines survive, plus exactly one error line")
	assert.Equal(t, []string{"a", "b"}, got[:2])
	assert.Contains(t, got[2], "[client] stream error: connection reset by peer")
	assert.Equal(t, 1, rc)
}

func TestPumpWaitFailureWithoutExitStatus(t *testing.T) {
	got, rc := runPump(strings.NewReader("done\n"), func() error {
		return errors.New("ssh: session channel closed")
	})

	require.Len(t, got, 2)
	assert.Equal(t, "done", got[0])
	assert.Contains(t, got[1], "[client] stream error: ssh: session channel closed")
	assert.Equal(t, 1, rc)
}

func TestPumpReadFailureMasksWaitError(t *testing.T) {
	// one injected line total, even when wait fails afterwards as well
	stdout := iotest.ErrReader(errors.New("read: broken pipe"))
	got, rc := runPump(stdout, func() error {
		return errors.New("wait: session torn down")
	})

	require.Len(t, got, 1)
	assert.Contains(t, got[0], "[client] stream error: read: broken pipe")
	assert.Equal(t, 1, rc)
}

func TestDrain(t *testing.T) {
	lines := make(chan string, 2)
	exit := make(chan int, 1)
	lines <- "noise"
	lines <- "more noise"
	close(lines)
	exit <- 7
	close(exit)

	assert.Equal(t, 7, Drain(lines, exit))
}
