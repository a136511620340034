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

// Package group exposes synchronous "transactions" over the Core's
// otherwise-asynchronous line channel: an echo-ping protocol writes one
// or more commands followed by "ping", and consumes lines until a
// matching "PONG" closes the transaction, pushing back any unrelated
// event line so the Core's main dispatcher still sees it.
package group

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/hostp2pd/hostp2pd/event"
)

// ErrTransactionTimeout means a transaction did not see PONG or its
// terminator within the deadline. The transaction's partial result
// (usually the zero value) is still meaningful to the caller.
var ErrTransactionTimeout = errors.New("group: transaction timed out")

// ErrTooManyFailures means the shared control-client error counter
// exceeded its configured bound during this transaction.
var ErrTooManyFailures = errors.New("group: too many control-client failures")

// controlClientErrorMarkers are substrings that identify a transient
// control-client error line rather than a protocol response.
var controlClientErrorMarkers = []string{
	"Could not connect to wpa_supplicant",
	"Connection to wpa_supplicant lost",
}

// Channel is what a Transactor needs from the line channel.
type Channel interface {
	WriteLine(s string)
	ReadLine(timeout time.Duration) (string, error)
	Pushback(line string)
}

// Transactor runs echo-ping transactions against a Channel.
type Transactor struct {
	ch       Channel
	deadline time.Duration

	// WpaErrors is the shared control-client error counter (the same
	// one the Core checks against max_num_wpa_cli_failures).
	WpaErrors *int
	MaxErrors int
}

// New returns a Transactor bound to ch, with every transaction's hard
// deadline set to deadline (min_conn_delay per spec).
func New(ch Channel, deadline time.Duration, wpaErrors *int, maxErrors int) *Transactor {
	return &Transactor{ch: ch, deadline: deadline, WpaErrors: wpaErrors, MaxErrors: maxErrors}
}

// Run writes commands followed by "ping", then reads lines until PONG
// closes the transaction, the deadline expires, or onLine reports it is
// done early. Every line is parsed into an event.Event and handed to
// onLine; a line onLine does not claim is queued and pushed back onto
// the channel only once the transaction itself is done, so the main
// dispatcher observes it afterward instead of this same loop
// immediately reading back its own rejected line (ReadLine always
// favors the pushback queue over fresh input).
func (t *Transactor) Run(commands []string, onLine func(ev event.Event) (claimed, done bool)) error {
	for _, c := range commands {
		t.ch.WriteLine(c)
	}
	t.ch.WriteLine("ping")

	var deferred []string
	defer func() {
		// Pushback is a stack (last pushed, first read), so push in
		// reverse to preserve the original arrival order once the
		// next reader drains it.
		for i := len(deferred) - 1; i >= 0; i-- {
			t.ch.Pushback(deferred[i])
		}
	}()

	deadline := time.Now().Add(t.deadline)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTransactionTimeout
		}
		line, err := t.ch.ReadLine(remaining)
		if err != nil {
			return ErrTransactionTimeout
		}
		if IsControlClientError(line) {
			if t.bumpFailures() {
				return ErrTooManyFailures
			}
			continue
		}
		ev := event.Parse(line)
		if ev.Tag == "PONG" {
			// The echo-ping sentinel itself is never a real event: it
			// closes the transaction and must never be deferred, or the
			// next transaction would inherit it and self-terminate
			// before reading its own response.
			return nil
		}
		claimed, done := onLine(ev)
		if !claimed {
			deferred = append(deferred, line)
		}
		if done {
			return nil
		}
	}
}

func (t *Transactor) bumpFailures() (fatal bool) {
	if t.WpaErrors == nil {
		return false
	}
	*t.WpaErrors++
	if *t.WpaErrors > t.MaxErrors {
		return true
	}
	return false
}

// IsControlClientError reports whether line is a transient control-client
// error rather than a protocol response or event.
func IsControlClientError(line string) bool {
	for _, marker := range controlClientErrorMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// ifaceSuffixRe-equivalent: interfaces are lines of the form p2p-<base>-<n>.
func isP2PInterfaceLine(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "p2p-") {
		return "", false
	}
	idx := strings.LastIndex(s, "-")
	if idx <= len("p2p-") {
		return "", false
	}
	if _, err := strconv.Atoi(s[idx+1:]); err != nil {
		return "", false
	}
	return s, true
}

// EnumerateInterfaces lists every p2p-<base>-<n> interface the control
// client reports in response to "interface".
func (t *Transactor) EnumerateInterfaces() ([]string, error) {
	var ifaces []string
	err := t.Run([]string{"interface"}, func(ev event.Event) (bool, bool) {
		if iface, ok := isP2PInterfaceLine(ev.Raw); ok {
			ifaces = append(ifaces, iface)
			return true, false
		}
		return false, false
	})
	return ifaces, err
}

// RemoveGroup issues p2p_group_remove <iface> and waits for the matching
// P2P-GROUP-REMOVED line.
func (t *Transactor) RemoveGroup(iface string) (bool, error) {
	removed := false
	err := t.Run([]string{"p2p_group_remove " + iface}, func(ev event.Event) (bool, bool) {
		if ev.Tag == event.TagP2PGroupRemoved && strings.Contains(ev.Raw, iface) {
			removed = true
			return true, true
		}
		return false, false
	})
	return removed, err
}

// Network is one row of list_networks.
type Network struct {
	ID    int
	SSID  string
	Flags string
}

// ListNetworks filters 4-column lines whose 4th column contains
// [P2P-PERSISTENT].
func (t *Transactor) ListNetworks() ([]Network, error) {
	var nets []Network
	err := t.Run([]string{"list_networks"}, func(ev event.Event) (bool, bool) {
		cols := strings.Split(ev.Raw, "\t")
		if len(cols) != 4 || !strings.Contains(cols[3], "[P2P-PERSISTENT]") {
			return false, false
		}
		id, convErr := strconv.Atoi(strings.TrimSpace(cols[0]))
		if convErr != nil {
			return false, false
		}
		nets = append(nets, Network{ID: id, SSID: cols[1], Flags: cols[3]})
		return true, false
	})
	return nets, err
}

// StartPersistent starts (or re-instantiates) a persistent group, with
// an optional explicit network id and a free-form command tail. It
// returns the SSID observed on P2P-GROUP-STARTED, or "" if none arrived.
// The P2P-GROUP-STARTED line is left unclaimed, so it is pushed back for
// the main dispatcher, which learns the group interface from it.
func (t *Transactor) StartPersistent(id *int, extra string) (string, error) {
	cmd := "p2p_group_add persistent"
	if id != nil {
		cmd += "=" + strconv.Itoa(*id)
	}
	if extra != "" {
		cmd += " " + extra
	}
	ssid := ""
	err := t.Run([]string{cmd}, func(ev event.Event) (bool, bool) {
		if ev.Tag == event.TagP2PGroupStarted {
			ssid = ev.SSID
			return false, true
		}
		return false, false
	})
	return ssid, err
}

// StartAutonomous starts a standalone (non-persistent) autonomous group
// and returns the SSID observed on P2P-GROUP-STARTED. As in
// StartPersistent, that line is pushed back for the main dispatcher.
func (t *Transactor) StartAutonomous(extra string) (string, error) {
	cmd := "p2p_group_add"
	if extra != "" {
		cmd += " " + extra
	}
	ssid := ""
	err := t.Run([]string{cmd}, func(ev event.Event) (bool, bool) {
		if ev.Tag == event.TagP2PGroupStarted {
			ssid = ev.SSID
			return false, true
		}
		return false, false
	})
	return ssid, err
}

// AddNetwork sequentially applies set_network <id> <k> <v> for every
// entry in params, then forces mode 3 and disabled 2, and optionally
// saves the configuration.
func (t *Transactor) AddNetwork(id int, params map[string]string, saveConfig bool) (bool, error) {
	cmds := []string{}
	for k, v := range params {
		cmds = append(cmds, "set_network "+strconv.Itoa(id)+" "+k+" "+v)
	}
	cmds = append(cmds, "set_network "+strconv.Itoa(id)+" mode 3")
	cmds = append(cmds, "set_network "+strconv.Itoa(id)+" disabled 2")
	if saveConfig {
		cmds = append(cmds, "save_config")
	}
	ok := false
	err := t.Run(cmds, func(ev event.Event) (bool, bool) {
		if ev.Tag == event.TagOK {
			ok = true
			return true, false
		}
		return false, false
	})
	return ok, err
}

// AnalyzeExistingGroup switches the control client's active interface to
// iface, issues status, and compares the reported ssid= field against
// known SSID (exact SSID-to-SSID equality, never a substring check),
// then switches back.
func (t *Transactor) AnalyzeExistingGroup(iface, genericIface, knownSSID string) (string, error) {
	found := ""
	err := t.Run([]string{"interface " + iface, "status", "interface " + genericIface}, func(ev event.Event) (bool, bool) {
		if ssid, ok := statusSSID(ev.Raw); ok {
			if ssid == knownSSID {
				found = ssid
			}
			return true, false
		}
		return false, false
	})
	return found, err
}

func statusSSID(line string) (string, bool) {
	const prefix = "ssid="
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimPrefix(line, prefix), true
}

// InProcessEnrol implements the in_process_enrol sub-protocol used when a
// provisioning event for an already-active group arrives: it switches
// the control client's active interface to groupIface, waits for the
// peer's own WPS-ENROLLEE-SEEN line to confirm it is actually present
// on the group, issues wps_pbc or wps_pin against it, then switches the
// active interface back to genericIface. Unlike the echo-ping
// transactions above, the wait for WPS-ENROLLEE-SEEN is for an
// asynchronous event that may arrive well after a bare "ping" would
// already have echoed back, so this method keeps its own pushback loop
// spanning both interface switches instead of using Run.
func (t *Transactor) InProcessEnrol(groupIface, genericIface, mac, pin string, pbc bool) error {
	t.ch.WriteLine("interface " + groupIface)

	var deferred []string
	defer func() {
		for i := len(deferred) - 1; i >= 0; i-- {
			t.ch.Pushback(deferred[i])
		}
	}()

	deadline := time.Now().Add(t.deadline)
	seen := false
	for !seen {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		line, err := t.ch.ReadLine(remaining)
		if err != nil {
			break
		}
		if IsControlClientError(line) {
			if t.bumpFailures() {
				return ErrTooManyFailures
			}
			continue
		}
		ev := event.Parse(line)
		if ev.Tag == event.TagWPSEnrolleeSeen && (mac == "" || ev.PeerMAC() == mac) {
			seen = true
			continue
		}
		deferred = append(deferred, line)
	}

	if seen {
		if pbc {
			t.ch.WriteLine("wps_pbc " + mac)
		} else {
			t.ch.WriteLine("wps_pin " + mac + " " + pin)
		}
	}

	t.ch.WriteLine("interface " + genericIface)
	t.ch.WriteLine("ping")
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTransactionTimeout
		}
		line, err := t.ch.ReadLine(remaining)
		if err != nil {
			return ErrTransactionTimeout
		}
		if IsControlClientError(line) {
			if t.bumpFailures() {
				return ErrTooManyFailures
			}
			continue
		}
		ev := event.Parse(line)
		if ev.Tag == "PONG" {
			if !seen {
				return ErrTransactionTimeout
			}
			return nil
		}
		deferred = append(deferred, line)
	}
}

// GetConfigMethods issues "get config_methods" and reports whether the
// response mentions virtual_push_button (true) or keypad/display (false).
func (t *Transactor) GetConfigMethods() (pbc bool, err error) {
	err = t.Run([]string{"get config_methods"}, func(ev event.Event) (bool, bool) {
		if strings.Contains(ev.Raw, "virtual_push_button") {
			pbc = true
			return true, false
		}
		if strings.Contains(ev.Raw, "keypad") || strings.Contains(ev.Raw, "display") {
			pbc = false
			return true, false
		}
		return false, false
	})
	return pbc, err
}

// AutoSelectInterface picks the first p2p-dev-* interface reported by
// the control client.
func (t *Transactor) AutoSelectInterface() (string, error) {
	selected := ""
	err := t.Run([]string{"interface"}, func(ev event.Event) (bool, bool) {
		if strings.HasPrefix(ev.Raw, "p2p-dev-") && selected == "" {
			selected = strings.TrimSpace(ev.Raw)
			return true, false
		}
		return false, false
	})
	return selected, err
}

// CountActiveSessions issues list_sta and counts MAC-shaped lines. It is
// only ever invoked from within the Enroller.
func (t *Transactor) CountActiveSessions() (int, error) {
	n := 0
	err := t.Run([]string{"list_sta"}, func(ev event.Event) (bool, bool) {
		if ev.MAC != "" && ev.Tag == ev.MAC {
			n++
			return true, false
		}
		return false, false
	})
	return n, err
}

// ConfigureWPA applies set <k> <v> for every entry in params, in the
// order iterated, then optionally saves the configuration.
func (t *Transactor) ConfigureWPA(params map[string]string, saveConfig bool) error {
	cmds := []string{}
	for k, v := range params {
		cmds = append(cmds, "set "+k+" "+v)
	}
	if saveConfig {
		cmds = append(cmds, "save_config")
	}
	return t.Run(cmds, func(ev event.Event) (bool, bool) {
		return ev.Tag == event.TagOK, false
	})
}
