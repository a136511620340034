/*
Copyright (c) hostp2pd authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package lineio spawns the control client under a pseudo-terminal and
// exposes a line-oriented, timeout-bounded read/write interface with a
// pushback stack for lines that a synchronous sub-protocol reads but does
// not consume.
package lineio

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// ErrTimeout is returned by ReadLine when no full line arrives before the
// requested deadline.
var ErrTimeout = errors.New("lineio: read timeout")

// ErrClosed is returned by ReadLine once the channel has been torn down
// (EOF/EBADF on the master side, i.e. the control client died).
var ErrClosed = errors.New("lineio: channel closed")

// Channel is a duplex, line-oriented connection to a child process
// attached to the slave side of a pseudo-terminal.
type Channel struct {
	cmd    *exec.Cmd
	master *os.File
	slave  *os.File

	readBuf []byte

	mu       sync.Mutex
	pushback []string
	closed   bool

	exitCh chan error
}

// Spawn starts path with args under a fresh pty, slave attached to the
// child's stdio with local echo disabled, and returns the master-side
// Channel. Unlike pty.Start, the slave side is kept open (retrievable via
// SlaveFile) rather than closed once the child has started: the Core
// hands that same slave fd to its Enroller child as a write-only
// back-channel, so Enroller's tagged records arrive as ordinary input on
// this Channel's ReadLine.
func Spawn(path string, args ...string) (*Channel, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("opening pty for %q: %w", path, err)
	}

	cmd := exec.Command(path, args...)
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := cmd.Start(); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("spawning %q: %w", path, err)
	}
	if err := disableEcho(master); err != nil {
		log.Warningf("could not disable local echo on control client pty: %v", err)
	}

	c := &Channel{
		cmd:    cmd,
		master: master,
		slave:  slave,
		exitCh: make(chan error, 1),
	}
	go func() {
		c.exitCh <- cmd.Wait()
	}()
	return c, nil
}

// SlaveFile returns the pty slave retained by Spawn, for a caller that
// needs to hand the same fd to another process (the Enroller
// back-channel). It remains valid until Close.
func (c *Channel) SlaveFile() *os.File {
	return c.slave
}

// disableEcho clears ECHO on the pty so lines we write are not echoed
// back to us by the line discipline.
func disableEcho(f *os.File) error {
	termios, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	if err != nil {
		return err
	}
	termios.Lflag &^= unix.ECHO
	return unix.IoctlSetTermios(int(f.Fd()), unix.TCSETS, termios)
}

// Pushback pushes line to the head of the read queue: the next ReadLine
// call returns it before touching the OS.
func (c *Channel) Pushback(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushback = append(c.pushback, line)
}

func (c *Channel) popPushback() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.pushback)
	if n == 0 {
		return "", false
	}
	line := c.pushback[n-1]
	c.pushback = c.pushback[:n-1]
	return line, true
}

// ReadLine reads exactly one line (newline stripped, any carriage return
// discarded), capped by timeout. It returns ErrTimeout on expiry and
// ErrClosed once the channel has been torn down.
func (c *Channel) ReadLine(timeout time.Duration) (string, error) {
	if line, ok := c.popPushback(); ok {
		return line, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		if idx := bytes.IndexByte(c.readBuf, '\n'); idx >= 0 {
			line := bytes.TrimRight(c.readBuf[:idx], "\r")
			c.readBuf = c.readBuf[idx+1:]
			return string(line), nil
		}

		if c.isClosed() {
			return "", ErrClosed
		}
		if err := c.master.SetReadDeadline(deadline); err != nil {
			return "", fmt.Errorf("setting read deadline: %w", err)
		}
		chunk := make([]byte, 4096)
		n, err := c.master.Read(chunk)
		if n > 0 {
			c.readBuf = append(c.readBuf, chunk[:n]...)
			continue
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return "", ErrTimeout
			}
			return "", ErrClosed
		}
	}
}

// WriteLine appends a newline and writes s atomically. It soft-fails
// (logged, not surfaced) once the channel has been closed.
func (c *Channel) WriteLine(s string) {
	if c.isClosed() {
		log.Debugf("write_line(%q) dropped: channel already closed", s)
		return
	}
	if _, err := c.master.Write([]byte(s + "\n")); err != nil {
		log.Debugf("write_line(%q) failed: %v", s, err)
	}
}

// PollChild is a non-blocking check for child exit. A non-nil error means
// the control client has died and termination must be initiated.
func (c *Channel) PollChild() (exited bool, err error) {
	select {
	case err = <-c.exitCh:
		c.exitCh <- err // keep it available for subsequent polls
		return true, err
	default:
		return false, nil
	}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close tears down the channel: closing the master fd causes any
// in-flight ReadLine to unblock with EOF, and delivers SIGHUP to the
// child via pty semantics. Idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	if c.slave != nil {
		c.slave.Close()
	}
	return c.master.Close()
}

// Pid returns the spawned child's process id.
func (c *Channel) Pid() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}
