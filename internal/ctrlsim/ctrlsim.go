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

// Package ctrlsim is a scripted stand-in for a real wpa_supplicant
// control-client pty, used to drive the Core engine end-to-end in tests
// without spawning any real process. It records every outbound command
// and lets a test inject inbound lines (including P2P-GROUP-STARTED and
// friends) on its own schedule.
package ctrlsim

import (
	"os"
	"sync"
	"time"

	"github.com/hostp2pd/hostp2pd/lineio"
)

// Sim is an in-memory, single-consumer fake control-client channel.
type Sim struct {
	mu sync.Mutex

	written  []string
	inbound  []string
	pushback []string
	closed   bool
}

// New returns an empty Sim.
func New() *Sim {
	return &Sim{}
}

// Inject queues line to be returned by a future ReadLine, in FIFO order.
func (s *Sim) Inject(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbound = append(s.inbound, line)
}

// Written returns every line WriteLine has recorded so far, in order.
func (s *Sim) Written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.written))
	copy(out, s.written)
	return out
}

// WriteLine implements the Engine's outbound half; it just records cmd.
func (s *Sim) WriteLine(cmd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, cmd)
}

// Pushback re-queues line ahead of any pending injected input.
func (s *Sim) Pushback(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushback = append(s.pushback, line)
}

// ReadLine returns the next pushed-back or injected line, blocking up to
// timeout (polled) if none is queued yet, and erroring like lineio once
// closed or once the deadline passes.
func (s *Sim) ReadLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if line, ok := s.next(); ok {
			return line, nil
		}
		if s.isClosed() {
			return "", lineio.ErrClosed
		}
		if time.Now().After(deadline) {
			return "", lineio.ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *Sim) next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.pushback); n > 0 {
		line := s.pushback[n-1]
		s.pushback = s.pushback[:n-1]
		return line, true
	}
	if len(s.inbound) == 0 {
		return "", false
	}
	line := s.inbound[0]
	s.inbound = s.inbound[1:]
	return line, true
}

// SlaveFile always returns nil: ctrlsim never opens a real pty, so the
// Engine must skip spawning a real Enroller child and only exercise its
// own bookkeeping.
func (s *Sim) SlaveFile() *os.File { return nil }

func (s *Sim) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close marks the Sim closed; further ReadLine calls return ErrClosed.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return nil
}
