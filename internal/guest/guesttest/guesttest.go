// Package guesttest provides in-memory guests for tests.
package guesttest

import (
	"context"
	"os"
	"regexp"
	"strings"
	"sync"
)

// Upload is a file received by a fake Communicator
type Upload struct {
	LocalPath  string
	RemotePath string
	Content    []byte
}

// Communicator is a scripted guest. Interface listings and address queries
// are answered from Interfaces and Addresses; every command is recorded.
type Communicator struct {
	mu sync.Mutex

	Interfaces []string          // Answer to the interface listing
	Addresses  map[string]string // Interface name to live IPv4
	Failures   map[string]error  // Substring of a command to the error it returns
	UploadErr  error             // Returned by every Upload

	Commands []string
	Uploads  []Upload
}

// New returns a guest exposing the given interfaces and addresses.
func New(interfaces []string, addresses map[string]string) *Communicator {
	if addresses == nil {
		addresses = map[string]string{}
	}
	return &Communicator{
		Interfaces: interfaces,
		Addresses:  addresses,
		Failures:   map[string]error{},
	}
}

var devRe = regexp.MustCompile(`dev '([^']*)'`)

// RunPrivileged records cmd and answers it from the scripted state.
func (c *Communicator) RunPrivileged(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Commands = append(c.Commands, cmd)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for needle, err := range c.Failures {
		if strings.Contains(cmd, needle) {
			return "", err
		}
	}

	switch {
	case strings.Contains(cmd, "ifconfig -a"):
		if len(c.Interfaces) == 0 {
			return "", nil
		}
		return strings.Join(c.Interfaces, "\n") + "\n", nil
	case strings.Contains(cmd, "addr show"):
		m := devRe.FindStringSubmatch(cmd)
		if m == nil {
			return "", nil
		}
		if addr, ok := c.Addresses[m[1]]; ok {
			return addr + "\n", nil
		}
		return "", nil
	}
	return "", nil
}

// RunPrivilegedFunc implements guest.Communicator.
func (c *Communicator) RunPrivilegedFunc(ctx context.Context, cmd string, fn func(stdout string)) error {
	out, err := c.RunPrivileged(ctx, cmd)
	if err != nil {
		return err
	}
	fn(out)
	return nil
}

// Upload captures the local file content at the time of the call.
func (c *Communicator) Upload(ctx context.Context, localPath, remotePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.UploadErr != nil {
		return c.UploadErr
	}
	content, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	c.Uploads = append(c.Uploads, Upload{LocalPath: localPath, RemotePath: remotePath, Content: content})
	return nil
}

// CommandsContaining returns the recorded commands that contain needle.
func (c *Communicator) CommandsContaining(needle string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, cmd := range c.Commands {
		if strings.Contains(cmd, needle) {
			out = append(out, cmd)
		}
	}
	return out
}
