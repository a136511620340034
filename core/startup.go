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
	log "github.com/sirupsen/logrus"

	"github.com/hostp2pd/hostp2pd/hookrunner"
)

// runStartup executes the seven-step activation sequence. loop runs it
// once, before reading any line from the control client; it does not
// wait for a readiness banner such as "Interactive mode" or
// "Connection established".
func (e *Engine) runStartup() error {
	if err := e.tr.ConfigureWPA(e.cfg.ConfigParms, false); err != nil {
		log.Warningf("startup: applying config_parms failed: %v", err)
	}

	if e.cfg.PBCInUse == nil {
		pbc, err := e.tr.GetConfigMethods()
		if err != nil {
			log.Warningf("startup: get config_methods failed, defaulting to keypad: %v", err)
			pbc = false
		}
		e.cfg.PBCInUse = &pbc
	}

	e.ch.WriteLine("p2p_stop_find")
	if *e.cfg.PBCInUse {
		e.ch.WriteLine("set config_methods virtual_push_button")
	} else {
		e.ch.WriteLine("set config_methods keypad")
	}
	e.ch.WriteLine("p2p_find")

	if e.cfg.SSIDPostfix != "" {
		e.ch.WriteLine("p2p_set ssid_postfix " + e.cfg.SSIDPostfix)
	}

	if err := e.recoverExistingOrStartGroup(); err != nil {
		log.Warningf("startup: group activation failed: %v", err)
	}

	// A freshly started (non-existing) group only learns its interface
	// name from the asynchronous P2P-GROUP-STARTED line that follows;
	// onGroupStarted spawns the Enroller once that arrives. An EXISTING
	// group already carries its interface here.
	if e.group != nil && e.group.Iface != "" {
		e.startEnroller()
	}

	e.ch.WriteLine("p2p_stop_find")
	e.ch.WriteLine("p2p_find")

	_ = e.hooks.Run(hookrunner.ActionStarted)
	e.started = true
	return nil
}

// recoverExistingOrStartGroup implements step 5: look for a group the
// supplicant already has active against one of our known persistent
// SSIDs; failing that, start an autonomous or persistent group per
// configuration.
func (e *Engine) recoverExistingOrStartGroup() error {
	nets, err := e.tr.ListNetworks()
	if err != nil {
		log.Warningf("startup: list_networks failed: %v", err)
	}

	ifaces, err := e.tr.EnumerateInterfaces()
	if err != nil {
		log.Warningf("startup: enumerate_p2p_interfaces failed: %v", err)
	}
	for _, iface := range ifaces {
		for _, n := range nets {
			ssid, analyzeErr := e.tr.AnalyzeExistingGroup(iface, e.cfg.Interface, n.SSID)
			if analyzeErr != nil {
				continue
			}
			if ssid != "" {
				id := n.ID
				e.group = &activeGroup{Iface: iface, SSID: ssid, Type: GroupExisting, PersistentID: &id}
				return nil
			}
		}
	}

	if e.cfg.ActivateAutonomousGroup {
		ssid, startErr := e.tr.StartAutonomous(e.cfg.P2PGroupAddOpts)
		if startErr != nil {
			return startErr
		}
		if ssid != "" {
			e.group = &activeGroup{SSID: ssid, Type: GroupAutonomous}
		}
		return nil
	}

	if e.cfg.ActivatePersistentGroup && !e.cfg.DynamicGroup {
		ssid, startErr := e.tr.StartPersistent(e.cfg.PersistentNetworkID, e.cfg.P2PGroupAddOpts)
		if startErr != nil {
			return startErr
		}
		if ssid != "" {
			e.group = &activeGroup{SSID: ssid, Type: GroupPersistent, PersistentID: e.cfg.PersistentNetworkID}
		}
	}
	return nil
}
