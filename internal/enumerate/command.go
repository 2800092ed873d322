package enumerate

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/standardbeagle/hopper/internal/debug"
)

// lookPath is replaced in tests.
var lookPath = exec.LookPath

var isWindows = runtime.GOOS == "windows"

// waitDelay bounds how long Wait blocks on output pipes held open by
// grandchildren after the command itself exited or was killed.
const waitDelay = 2 * time.Second

// commandListing streams the stdout lines of one or more commands run one
// after another in dir. Each command starts once the previous one is drained;
// a command that writes to stderr ends the listing with that output as the error.
type commandListing struct {
	ctx          context.Context
	cancel       context.CancelFunc
	dir          string
	argvs        [][]string
	decoder      *encoding.Decoder
	ignoreStderr bool

	cmd     *exec.Cmd
	scanner *bufio.Scanner
	stderr  bytes.Buffer
	path    string
	err     error
	done    bool
}

func newCommandListing(ctx context.Context, dir string, decoder *encoding.Decoder, argvs ...[]string) *commandListing {
	ctx, cancel := context.WithCancel(ctx)
	return &commandListing{
		ctx:     ctx,
		cancel:  cancel,
		dir:     dir,
		argvs:   argvs,
		decoder: decoder,
	}
}

// start launches the first command so that a missing binary or bad working
// directory is reported by Enumerate rather than by the first Next.
func (c *commandListing) start() error {
	if err := c.startNext(); err != nil {
		c.cancel()
		return err
	}
	return nil
}

func (c *commandListing) startNext() error {
	argv := c.argvs[0]
	c.argvs = c.argvs[1:]

	debug.LogEnumerate("running %q in %s\n", argv, c.dir)

	cmd := exec.CommandContext(c.ctx, argv[0], argv[1:]...)
	cmd.Dir = c.dir
	cmd.WaitDelay = waitDelay
	c.stderr.Reset()
	if !c.ignoreStderr {
		cmd.Stderr = &c.stderr
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	var r io.Reader = stdout
	if c.decoder != nil {
		r = transform.NewReader(stdout, c.decoder)
	}
	c.cmd = cmd
	c.scanner = bufio.NewScanner(r)
	c.scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return nil
}

func (c *commandListing) Next() bool {
	for !c.done {
		if c.scanner.Scan() {
			line := strings.TrimRight(c.scanner.Text(), "\r")
			if line == "" {
				continue
			}
			c.path = line
			return true
		}

		scanErr := c.scanner.Err()
		if scanErr != nil {
			// Unblock the writer before waiting
			c.cancel()
		}
		if err := c.finish(scanErr); err != nil {
			c.err = err
			c.done = true
			break
		}
		if len(c.argvs) == 0 {
			c.done = true
			break
		}
		if err := c.startNext(); err != nil {
			c.err = err
			c.done = true
		}
	}
	c.path = ""
	return false
}

// finish waits for the running command and converts its exit into an error.
func (c *commandListing) finish(scanErr error) error {
	waitErr := c.cmd.Wait()
	c.cmd = nil

	if scanErr != nil {
		return scanErr
	}
	if msg := strings.TrimSpace(c.stderr.String()); msg != "" {
		return errors.New(msg)
	}
	if waitErr != nil && c.ctx.Err() == nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) && c.ignoreStderr {
			// find exits non-zero on unreadable directories; the listing is still usable
			return nil
		}
		return waitErr
	}
	return c.ctx.Err()
}

func (c *commandListing) Path() string { return c.path }

func (c *commandListing) Err() error { return c.err }

// Close stops a running command. It is safe to call more than once.
func (c *commandListing) Close() error {
	c.cancel()
	if c.cmd != nil {
		_ = c.cmd.Wait()
		c.cmd = nil
	}
	c.done = true
	return nil
}

// newDecoder resolves an encoding label; UTF-8 and the empty label need no decoding.
func newDecoder(label string) (*encoding.Decoder, error) {
	if label == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	if enc == unicode.UTF8 {
		return nil, nil
	}
	return enc.NewDecoder(), nil
}

// runCommands is the shared Enumerate body of the external tool strategies.
func runCommands(ctx context.Context, root string, opts Options, ignoreStderr bool, argvs ...[]string) (Listing, error) {
	decoder, err := newDecoder(opts.Encoding)
	if err != nil {
		return nil, err
	}
	listing := newCommandListing(ctx, root, decoder, argvs...)
	listing.ignoreStderr = ignoreStderr
	if err := listing.start(); err != nil {
		return nil, err
	}
	return listing, nil
}

// shellCommand wraps a command line for the platform shell.
func shellCommand(line string) []string {
	if isWindows {
		return []string{"cmd", "/C", line}
	}
	return []string{"sh", "-c", line}
}

// shellQuote quotes s as a single shell word.
func shellQuote(s string) string {
	if isWindows {
		return `"` + s + `"`
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
