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

	log "github.com/sirupsen/logrus"

	"github.com/hostp2pd/hostp2pd/enroller"
	"github.com/hostp2pd/hostp2pd/event"
)

// startEnroller forks the child bound to the currently active group's
// interface and watches its liveness in the background. An Enroller only
// ever exists alongside an active group: this is only ever called with
// e.group non-nil, and terminateEnroller always runs alongside group
// teardown.
func (e *Engine) startEnroller() {
	if e.group == nil || e.group.enroller != nil {
		return
	}
	backchannel := e.ch.SlaveFile()
	if backchannel == nil {
		log.Warningf("no back-channel file available, skipping enroller spawn for %s", e.group.Iface)
		return
	}
	proc, err := enroller.Spawn(e.group.Iface, backchannel, e.configPath)
	if err != nil {
		log.Errorf("failed to spawn enroller for %s: %v", e.group.Iface, err)
		return
	}
	e.group.enroller = proc

	iface := e.group.Iface
	go func() {
		werr := proc.Wait()
		if werr != nil {
			log.Warningf("enroller for %s exited abnormally: %v", iface, werr)
		}
		// Synthesize the same teardown line a normal P2P-GROUP-REMOVED
		// would produce, so the main loop tears down bookkeeping through
		// its one code path regardless of why the group ended.
		e.ch.Pushback(fmt.Sprintf("%s %s GO reason=ENROLLER_EXITED", event.TagP2PGroupRemoved, iface))
	}()
}

// terminateEnroller asks the running Enroller (if any) to stop.
func (e *Engine) terminateEnroller() {
	if e.group == nil || e.group.enroller == nil {
		return
	}
	if err := e.group.enroller.Terminate(); err != nil {
		log.Warningf("terminating enroller for %s: %v", e.group.Iface, err)
	}
}

// onActiveSessions implements the dynamic-group teardown rule: once the
// Enroller reports zero sessions and the group is dynamic and not
// persistent, remove it.
func (e *Engine) onActiveSessions(n int) {
	if e.group == nil {
		return
	}
	if n > 0 || !e.cfg.DynamicGroup || e.group.Type == GroupPersistent {
		return
	}
	removed, err := e.tr.RemoveGroup(e.group.Iface)
	if err != nil || !removed {
		log.Warningf("dynamic teardown: removing group %s failed: %v", e.group.Iface, err)
		return
	}
	// RemoveGroup's own echo-ping transaction claims the terminating
	// P2P-GROUP-REMOVED line itself, so it never reaches onGroupRemoved:
	// run the same cleanup here instead.
	e.teardownGroup()
}
