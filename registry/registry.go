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

// Package registry tracks, per MAC address, the last-seen friendly name
// and device-type label of a peer. It is shared between Core and
// Enroller via a trivial tab-separated wire tuple carried over the
// parent pty.
package registry

import (
	"fmt"
	"strings"
	"sync"
)

// Entry is what the registry knows about a peer.
type Entry struct {
	Name       string
	DeviceType string
}

// Registry is a mutex-guarded MAC -> Entry map. The zero value is ready
// to use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Put records name/deviceType for mac. It is a no-op if the entry is
// already exactly this value, making repeated application idempotent.
func (r *Registry) Put(mac, name, deviceType string) {
	if mac == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[string]Entry)
	}
	next := Entry{Name: name, DeviceType: deviceType}
	if cur, ok := r.entries[mac]; ok && cur == next {
		return
	}
	r.entries[mac] = next
}

// Get returns what is known about mac, and whether it has ever been seen.
func (r *Registry) Get(mac string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[mac]
	return e, ok
}

// Reset clears the registry, e.g. on operator demand.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Entry)
}

// Len reports how many peers are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// EncodeRegister builds the exact wire tuple used to cross the
// Core/Enroller process boundary: HOSTP2PD_ADD_REGISTER\tMAC\tNAME\tTYPE
func EncodeRegister(mac, name, deviceType string) string {
	return fmt.Sprintf("HOSTP2PD_ADD_REGISTER\t%s\t%s\t%s", mac, name, deviceType)
}

// DecodeRegister parses a line produced by EncodeRegister. ok is false if
// line is not a well-formed register record.
func DecodeRegister(line string) (mac, name, deviceType string, ok bool) {
	fields := strings.Split(line, "\t")
	if len(fields) != 4 || fields[0] != "HOSTP2PD_ADD_REGISTER" {
		return "", "", "", false
	}
	return fields[1], fields[2], fields[3], true
}
