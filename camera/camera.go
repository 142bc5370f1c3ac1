// Package camera shells out to a local capture utility that emits one
// JPEG frame on stdout.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

type Client struct {
	name string
	args []string
}

// New builds a client from a whitespace-separated capture command,
// e.g. "libcamera-jpeg -o - -n" or "fswebcam -q -".
func New(command string) (*Client, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("empty capture command")
	}
	return &Client{name: fields[0], args: fields[1:]}, nil
}

// Capture runs the configured command once and returns its stdout.
func (c *Client) Capture(ctx context.Context) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("capture command: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, errors.New("capture command produced no output")
	}
	return stdout.Bytes(), nil
}
