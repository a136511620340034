//go:build !linux

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

import "os/exec"

// setDeathSignal is a no-op on platforms without PR_SET_PDEATHSIG; the
// child relies on Core's best-effort Terminate instead.
func setDeathSignal(*exec.Cmd) {}
