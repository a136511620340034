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

package enroller

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hostp2pd/hostp2pd/config"
	"github.com/hostp2pd/hostp2pd/event"
	"github.com/hostp2pd/hostp2pd/group"
	"github.com/hostp2pd/hostp2pd/lineio"
	"github.com/hostp2pd/hostp2pd/registry"
	"github.com/hostp2pd/hostp2pd/timing"
)

// Run is the Enroller child's entrypoint: it opens its own control-client
// instance bound to groupIface, runs a single event loop at the Enroller
// timeout level, handles WPS credentialling, and forwards registry and
// statistics updates to Core over the inherited back-channel fd. It
// returns when the group is torn down, the control client dies, or Core
// requests termination (observed here as SIGTERM/SIGINT, since the
// back-channel itself is write-only).
func Run(cfg *config.Config, groupIface string) error {
	backchannel := os.NewFile(uintptr(BackchannelFD), "backchannel")
	if backchannel == nil {
		return fmt.Errorf("enroller: backchannel fd %d was not inherited", BackchannelFD)
	}
	defer backchannel.Close()

	ch, err := lineio.Spawn(cfg.P2PClient, "-i", groupIface)
	if err != nil {
		return fmt.Errorf("enroller: spawning control client for %s: %w", groupIface, err)
	}
	defer ch.Close()

	reg := registry.New()
	tc := timing.New(cfg.SelectTimeoutSecs, cfg.MinConnDelay, 0)
	tc.SetLevel(timing.Enroller)

	wpaErrors := 0
	tr := group.New(ch, cfg.MinConnDelay, &wpaErrors, cfg.MaxNumWpaCliFailures)

	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, syscall.SIGTERM, syscall.SIGINT)

	log.Infof("enroller running for %s", groupIface)

	for {
		select {
		case <-terminate:
			log.Infof("enroller for %s received termination request", groupIface)
			return nil
		default:
		}

		line, err := ch.ReadLine(tc.CurrentTimeout())
		if errors.Is(err, lineio.ErrTimeout) {
			tc.OnTimeout()
			continue
		}
		if err != nil {
			log.Warningf("enroller for %s: control client channel closed: %v", groupIface, err)
			return err
		}

		ev := event.Parse(line)
		tc.OnEvent(ev.Tag, time.Now())

		if mac := ev.PeerMAC(); mac != "" && ev.Name != "" {
			typ := event.DeviceTypeLabel(ev.PriDevType)
			reg.Put(mac, ev.Name, typ)
			fmt.Fprintf(backchannel, "%s\n", registry.EncodeRegister(mac, ev.Name, typ))
		}
		if ev.Tag != "" {
			fmt.Fprintf(backchannel, "HOSTP2PD_STATISTICS\t%s\n", ev.Tag)
		}

		switch ev.Tag {
		case event.TagWPSEnrolleeSeen:
			handleEnrolleeSeen(cfg, ch, ev)
		case event.TagAPStaConnected, event.TagAPStaDisconnected, event.TagCtrlEventDisconnected:
			reportActiveSessions(tr, backchannel)
			if ev.Tag == event.TagCtrlEventDisconnected {
				return nil
			}
		case event.TagAPDisabled:
			return nil
		}
	}
}

// handleEnrolleeSeen implements step 4 of the Enroller process: PBC when
// enabled and the peer is white-listed, otherwise a PIN challenge.
func handleEnrolleeSeen(cfg *config.Config, ch *lineio.Channel, ev event.Event) {
	mac := ev.PeerMAC()
	if mac == "" {
		log.Warning("enroller: WPS-ENROLLEE-SEEN with no MAC, ignoring")
		return
	}

	pbc := cfg.PBCInUse != nil && *cfg.PBCInUse
	if pbc && cfg.PBCWhiteListed(ev.Name) {
		ch.WriteLine("wps_pbc " + mac)
		return
	}
	if pbc {
		log.Warningf("enroller: %q not in pbc_white_list, answering WPS-ENROLLEE-SEEN from %s with a PIN", ev.Name, mac)
	}

	pin, err := cfg.PINSourceOf().SupplyPIN("")
	if err != nil {
		log.Errorf("enroller: could not obtain PIN for %s: %v", mac, err)
		return
	}
	ch.WriteLine("wps_pin " + mac + " " + pin)
}

// reportActiveSessions implements step 6: list_sta, count, tell Core.
func reportActiveSessions(tr *group.Transactor, backchannel *os.File) {
	n, err := tr.CountActiveSessions()
	if err != nil {
		log.Warningf("enroller: count_active_sessions failed: %v", err)
		return
	}
	fmt.Fprintf(backchannel, "HOSTP2PD_ACTIVE_SESSIONS\t%d\n", n)
}
