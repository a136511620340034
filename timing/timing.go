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

// Package timing implements the read-timeout level state machine and the
// periodic-scan backoff policy described for the control engine: which of
// normal/connect/long/enroller applies right now, when p2p_find should be
// re-issued, and the min_conn_delay gate on new connect attempts.
package timing

import (
	"time"

	"github.com/hostp2pd/hostp2pd/config"
	"github.com/hostp2pd/hostp2pd/event"
)

// Level selects the current read-timeout.
type Level int

const (
	// Normal is the default, aggressive-scan level.
	Normal Level = iota
	// Connect is entered around connect/negotiation dialogues so
	// background scans don't interrupt WPS.
	Connect
	// Long is entered once scan polling has exhausted max_scan_polling.
	Long
	// Enroller is the near-quiescent level the Enroller runs at.
	Enroller
)

func (l Level) String() string {
	switch l {
	case Normal:
		return "normal"
	case Connect:
		return "connect"
	case Long:
		return "long"
	case Enroller:
		return "enroller"
	default:
		return "unknown"
	}
}

// Controller tracks the current timeout level, the scan-polling counter,
// and the connect-rate gate.
type Controller struct {
	levels       config.TimeoutLevels
	minConnDelay time.Duration
	maxScanPoll  int

	level          Level
	scanPolling    int
	p2pConnectTime time.Time
	retryAllowed   bool
}

// New builds a Controller for the given configuration, starting at Normal.
func New(levels config.TimeoutLevels, minConnDelay time.Duration, maxScanPolling int) *Controller {
	return &Controller{
		levels:       levels,
		minConnDelay: minConnDelay,
		maxScanPoll:  maxScanPolling,
		level:        Normal,
	}
}

// Level returns the current level.
func (c *Controller) Level() Level { return c.level }

// SetLevel forces the level, e.g. to Connect around a p2p_connect, or to
// Enroller for the Enroller's own loop.
func (c *Controller) SetLevel(l Level) { c.level = l }

// CurrentTimeout returns the read timeout for the current level.
func (c *Controller) CurrentTimeout() time.Duration {
	switch c.level {
	case Connect:
		return c.levels.Connect
	case Long:
		return c.levels.Long
	case Enroller:
		return c.levels.Enroller
	default:
		return c.levels.Normal
	}
}

// ScanPolling returns the number of consecutive empty p2p_find probes.
func (c *Controller) ScanPolling() int { return c.scanPolling }

// OnTimeout is called every time ReadLine returns a TIMEOUT token. It
// returns whether a p2p_find probe should be issued this tick: once
// scan_polling has already exceeded max_scan_polling, only an
// informational log is warranted and no further p2p_find is sent.
func (c *Controller) OnTimeout() (issueFind bool) {
	exceeded := c.maxScanPoll > 0 && c.scanPolling >= c.maxScanPoll
	issueFind = !exceeded
	c.scanPolling++
	if c.level == Normal && c.maxScanPoll > 0 && c.scanPolling >= c.maxScanPoll {
		c.level = Long
	}
	return issueFind
}

// OnEvent folds a freshly dispatched event into the scan/level state:
// any non-OK event resets scan_polling to zero, and a handful of
// terminal tags fall back to Normal. P2P-FIND-STOPPED only resets the
// level once the connect-rate gate has itself expired ("past the delay
// gate").
func (c *Controller) OnEvent(tag string, now time.Time) {
	if tag != event.TagOK {
		c.scanPolling = 0
	}
	switch tag {
	case event.TagAPStaDisconnected, event.TagP2PDeviceLost, event.TagWPSTimeout,
		event.TagP2PGroupRemoved, event.TagFail:
		c.level = Normal
	case event.TagP2PFindStopped:
		if c.Gate(now) {
			c.level = Normal
		}
	}
}

// Gate reports whether a new p2p_connect-class command may be issued now:
// p2p_connect_time + min_conn_delay must not be in the future. The one
// explicit exception (P3) is a pending AllowRetry call, which is
// consumed by this check so it only waives the gate for the single
// retry attempt that follows a P2P-GROUP-FORMATION-FAILURE.
func (c *Controller) Gate(now time.Time) bool {
	if c.retryAllowed {
		c.retryAllowed = false
		return true
	}
	if c.p2pConnectTime.IsZero() {
		return true
	}
	return !c.p2pConnectTime.Add(c.minConnDelay).After(now)
}

// AllowRetry waives the next Gate check, implementing the P3 carve-out
// for the bounded retry onNegotiationFailure issues immediately after a
// P2P-GROUP-FORMATION-FAILURE.
func (c *Controller) AllowRetry() {
	c.retryAllowed = true
}

// Mark records that a connect-class command was just issued.
func (c *Controller) Mark(now time.Time) {
	c.p2pConnectTime = now
}
