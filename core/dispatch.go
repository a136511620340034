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

package core

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hostp2pd/hostp2pd/event"
	"github.com/hostp2pd/hostp2pd/hookrunner"
	"github.com/hostp2pd/hostp2pd/timing"
)

// dispatch routes one parsed event to its handler, following the
// provisioning decision table, the connection lifecycle, and the
// failure/retry rules.
func (e *Engine) dispatch(ev event.Event) {
	switch ev.Tag {
	case event.TagP2PGoNegRequest:
		e.onGoNegRequest(ev)
	case event.TagP2PProvDiscShowPin:
		e.onProvDiscShowPin(ev)
	case event.TagP2PProvDiscPBCReq:
		e.onProvDiscPBCReq(ev)
	case event.TagP2PProvDiscEnterPin:
		log.Errorf("peer %s asked us to enter its PIN, rejecting", ev.PeerMAC())
	case event.TagAPStaConnected:
		e.onStaConnected(ev)
	case event.TagAPStaDisconnected:
		e.onStaDisconnected(ev)
	case event.TagP2PGroupRemoved:
		e.onGroupRemoved(ev)
	case event.TagP2PGroupStarted:
		e.onGroupStarted(ev)
	case event.TagP2PGroupFormationFailure, event.TagP2PGoNegFailure, event.TagFail:
		e.onNegotiationFailure(ev)
	case event.TagWPSTimeout, event.TagP2PProvDiscFailure:
		e.timing.SetLevel(timing.Normal)
	case event.TagCtrlEventTerminating:
		log.Warning("control client reports CTRL-EVENT-TERMINATING, continuing")
	case event.TagP2PDeviceFound:
		if ev.MAC != "" {
			e.reg.Put(ev.MAC, ev.Name, event.DeviceTypeLabel(ev.PriDevType))
		}
	}
}

func (e *Engine) onGoNegRequest(ev event.Event) {
	if e.group != nil {
		log.Errorf("P2P-GO-NEG-REQUEST received while a group is already active, ignoring")
		return
	}
	if *e.cfg.PBCInUse {
		if e.cfg.PBCWhiteListed(ev.Name) {
			e.startSession(ev.PeerMAC(), true)
			return
		}
		e.rotateConfigMethod()
		return
	}
	e.startSession(ev.PeerMAC(), false)
}

func (e *Engine) onProvDiscShowPin(ev event.Event) {
	if *e.cfg.PBCInUse {
		return
	}
	if e.group != nil {
		pin, err := e.cfg.PINSourceOf().SupplyPIN("")
		if err != nil {
			log.Errorf("show-pin: could not obtain PIN for %s: %v", ev.PeerMAC(), err)
			return
		}
		e.inProcessEnrol(ev.PeerMAC(), pin, false)
		return
	}
	e.startSession(ev.PeerMAC(), false)
}

func (e *Engine) onProvDiscPBCReq(ev event.Event) {
	if !*e.cfg.PBCInUse {
		return
	}
	if !e.cfg.PBCWhiteListed(ev.Name) {
		e.rotateConfigMethod()
		return
	}
	if e.group != nil {
		e.inProcessEnrol(ev.PeerMAC(), "", true)
		return
	}
	e.startSession(ev.PeerMAC(), true)
}

// inProcessEnrol runs the in_process_enrol sub-protocol against the
// already-active group: switch the control client to the group
// interface, wait for the peer's own WPS-ENROLLEE-SEEN line, issue
// wps_pbc/wps_pin, then switch back to the generic interface.
func (e *Engine) inProcessEnrol(mac, pin string, pbc bool) {
	if err := e.tr.InProcessEnrol(e.group.Iface, e.cfg.Interface, mac, pin, pbc); err != nil {
		log.Warningf("in_process_enrol(%s) failed: %v", mac, err)
	}
}

// rotateConfigMethod flips pbc_in_use and reissues set config_methods,
// used when a peer's enrolment method doesn't match our current mode and
// the peer isn't PBC white-listed.
func (e *Engine) rotateConfigMethod() {
	flipped := !*e.cfg.PBCInUse
	e.cfg.PBCInUse = &flipped
	if flipped {
		e.ch.WriteLine("set config_methods virtual_push_button")
	} else {
		e.ch.WriteLine("set config_methods keypad")
	}
}

// startSession issues p2p_connect for mac, subject to the min_conn_delay
// gate, and records it as the candidate for a formation-failure retry.
func (e *Engine) startSession(mac string, pbc bool) {
	if mac == "" {
		return
	}
	now := time.Now()
	if !e.timing.Gate(now) {
		log.Debugf("start_session(%s) suppressed by min_conn_delay gate", mac)
		return
	}
	e.timing.SetLevel(timing.Connect)
	e.timing.Mark(now)
	e.lastMAC = mac

	if err := e.hooks.Run(hookrunner.ActionStartGroup); err != nil {
		log.Debugf("start_group hook: %v", err)
	}

	cmd := "p2p_connect " + mac + " "
	if pbc {
		cmd += "pbc"
	} else {
		pin, err := e.cfg.PINSourceOf().SupplyPIN("")
		if err != nil {
			log.Errorf("start_session(%s): could not obtain PIN: %v", mac, err)
			return
		}
		cmd += pin + " display"
	}
	if e.cfg.PersistentNetworkID != nil {
		cmd += fmt.Sprintf(" persistent=%d", *e.cfg.PersistentNetworkID)
	} else if e.cfg.ActivatePersistentGroup {
		cmd += " persistent"
	}
	if e.cfg.P2PConnectOpts != "" {
		cmd += " " + e.cfg.P2PConnectOpts
	}
	e.ch.WriteLine(cmd)
}

func (e *Engine) onStaConnected(ev event.Event) {
	e.timing.Mark(time.Time{})
	e.timing.SetLevel(timing.Normal)
	if err := e.hooks.Run(hookrunner.ActionConnect, ev.PeerMAC(), ev.Name, e.groupIface()); err != nil {
		log.Debugf("connect hook: %v", err)
	}
}

func (e *Engine) onStaDisconnected(ev event.Event) {
	if err := e.hooks.Run(hookrunner.ActionDisconnect, ev.PeerMAC(), ev.Name, e.groupIface()); err != nil {
		log.Debugf("disconnect hook: %v", err)
	}
}

func (e *Engine) onGroupRemoved(ev event.Event) {
	if e.group == nil || !strings.Contains(ev.Raw, e.group.Iface) {
		return
	}
	e.teardownGroup()
}

// teardownGroup performs the cleanup common to every path that ends the
// active group: a P2P-GROUP-REMOVED line observed by the main dispatcher,
// and a synchronous group.Transactor.RemoveGroup call (whose own
// echo-ping transaction claims that same line before it ever reaches
// dispatch, as in the dynamic-teardown path of onActiveSessions).
func (e *Engine) teardownGroup() {
	e.terminateEnroller()
	e.group = nil
	e.timing.SetLevel(timing.Normal)
	if err := e.hooks.Run(hookrunner.ActionStopGroup); err != nil {
		log.Debugf("stop_group hook: %v", err)
	}
	if e.timing.Gate(time.Now()) {
		e.ch.WriteLine("p2p_find")
	}
}

func (e *Engine) onGroupStarted(ev event.Event) {
	fields := strings.Fields(ev.Raw)
	iface := ""
	if len(fields) > 1 {
		iface = fields[1]
	}
	if e.group == nil {
		e.group = &activeGroup{Iface: iface, SSID: ev.SSID, Type: GroupNegotiated}
	} else {
		e.group.Iface = iface
		if ev.SSID != "" {
			e.group.SSID = ev.SSID
		}
	}
	e.timing.SetLevel(timing.Connect)
	e.startEnroller()
}

// onNegotiationFailure implements the bounded-retry rule: a dynamic,
// non-persistent group retries start_session against the last peer up
// to max_num_failures-1 times, waiting 2s between retries after the first.
func (e *Engine) onNegotiationFailure(ev event.Event) {
	e.terminateEnroller()
	e.group = nil
	e.timing.SetLevel(timing.Normal)

	if e.cfg.DynamicGroup && !e.cfg.ActivatePersistentGroup && e.numFailures+1 < e.cfg.MaxNumFailures {
		e.numFailures++
		if e.numFailures > 1 {
			time.Sleep(2 * time.Second)
		}
		e.timing.AllowRetry()
		e.startSession(e.lastMAC, e.cfg.PBCInUse != nil && *e.cfg.PBCInUse)
		return
	}

	e.numFailures = 0
	if err := e.hooks.Run(hookrunner.ActionStopGroup); err != nil {
		log.Debugf("stop_group hook: %v", err)
	}
	if e.timing.Gate(time.Now()) {
		e.ch.WriteLine("p2p_find")
	}
}

func (e *Engine) groupIface() string {
	if e.group == nil {
		return ""
	}
	return e.group.Iface
}
