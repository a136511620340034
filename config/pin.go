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

package config

import (
	"fmt"
	"os/exec"
	"strings"
)

// PINSource supplies a WPS PIN on demand. The default implementation hands
// back a fixed string; PINModule configures a ScriptPIN instead, mirroring
// the ability to swap the PIN supplier at load time.
type PINSource interface {
	SupplyPIN(previous string) (string, error)
}

// StaticPIN always returns the same configured PIN.
type StaticPIN struct {
	PIN string
}

// SupplyPIN implements PINSource.
func (s StaticPIN) SupplyPIN(string) (string, error) {
	if s.PIN == "" {
		return "", fmt.Errorf("no static pin configured")
	}
	return s.PIN, nil
}

// ScriptPIN runs an external program to obtain a PIN. The previous PIN (if
// any) is passed as its sole argument so the script can rotate.
type ScriptPIN struct {
	Path string
}

// SupplyPIN implements PINSource.
func (s ScriptPIN) SupplyPIN(previous string) (string, error) {
	out, err := exec.Command(s.Path, previous).Output()
	if err != nil {
		return "", fmt.Errorf("running pin_module %q: %w", s.Path, err)
	}
	pin := strings.TrimSpace(string(out))
	if pin == "" {
		return "", fmt.Errorf("pin_module %q returned an empty pin", s.Path)
	}
	return pin, nil
}
