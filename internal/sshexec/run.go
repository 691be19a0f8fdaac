package sshexec

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	// TimeoutExitCode is the sentinel exit code for bounded runs that
	// exceed their deadline, mirroring coreutils timeout(1).
	TimeoutExitCode = 124

	streamBuffer  = 64
	maxLineBytes  = 1024 * 1024
	initLineBytes = 64 * 1024
)

// Run executes cmd to completion with the client's default timeout.
func (c *Client) Run(ctx context.Context, cmd string) (int, string, string, error) {
	return c.RunTimeout(ctx, cmd, c.defaultTimeout)
}

// RunTimeout executes cmd and waits up to timeout for completion. A timed
// out command yields (TimeoutExitCode, "", "Timeout after Ns: <cmd>") with
// a nil error; the remote process is reaped on connection close, not here.
// A non-nil error means the command could not be executed at all.
func (c *Client) RunTimeout(ctx context.Context, cmd string, timeout time.Duration) (int, string, string, error) {
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	session, err := c.newSession()
	if err != nil {
		return -1, "", "", err
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		return TimeoutExitCode, "", fmt.Sprintf("Timeout after %ds: %s", int(timeout.Seconds()), cmd), nil
	case <-ctx.Done():
		return -1, stdout.String(), stderr.String(), ctx.Err()
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitStatus(), stdout.String(), stderr.String(), nil
		}
		return -1, stdout.String(), stderr.String(), err
	}
	return 0, stdout.String(), stderr.String(), nil
}

// Stream executes cmd with no overall timeout and delivers its standard
// output line by line. The exit code arrives on the second channel after
// the line channel closes; exactly one code is always delivered. A read
// failure injects a single error line and exit code 1; no line is lost
// or duplicated.
func (c *Client) Stream(ctx context.Context, cmd string) (<-chan string, <-chan int, error) {
	session, err := c.newSession()
	if err != nil {
		return nil, nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := session.Start(cmd); err != nil {
		session.Close()
		return nil, nil, fmt.Errorf("start command: %w", err)
	}

	lines := make(chan string, streamBuffer)
	exit := make(chan int, 1)

	go func() {
		defer session.Close()
		pump(stdout, session.Wait, lines, exit)
	}()

	return lines, exit, nil
}

// pump forwards stdout line by line, then resolves the exit code from
// wait. A read or wait failure injects exactly one error line and code 1;
// a remote non-zero exit carries its own code. The line channel always
// closes before the single exit code is delivered.
func pump(stdout io.Reader, wait func() error, lines chan<- string, exit chan<- int) {
	rc := 0

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, initLineBytes), maxLineBytes)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	if serr := scanner.Err(); serr != nil {
		lines <- fmt.Sprintf("[client] stream error: %v", serr)
		rc = 1
	}

	if werr := wait(); werr != nil {
		var exitErr *ssh.ExitError
		switch {
		case errors.As(werr, &exitErr):
			rc = exitErr.ExitStatus()
		case rc == 0:
			lines <- fmt.Sprintf("[client] stream error: %v", werr)
			rc = 1
		}
	}

	close(lines)
	exit <- rc
	close(exit)
}

// Drain consumes a stream to completion, discarding lines, and returns
// the exit code. Used for prelude commands whose output is noise.
func Drain(lines <-chan string, exit <-chan int) int {
	for range lines {
	}
	return <-exit
}
