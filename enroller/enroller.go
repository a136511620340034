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

// Package enroller implements both sides of the per-group child process:
// Spawn, called from the Core, forks a fresh copy of the running binary
// bound to one group interface; Run is that child's entrypoint, a second
// control-client event loop that handles WPS credentialling and reports
// back to the Core over an inherited file descriptor.
package enroller

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// BackchannelFD is the well-known file descriptor number the spawned
// child finds its write-only back-channel to Core on.
const BackchannelFD = 3

// HiddenFlag is the flag that tells a re-exec of this binary that it is
// an Enroller child, not a fresh Core.
const HiddenFlag = "-enroller-iface"

// Process supervises one running Enroller child.
type Process struct {
	cmd   *exec.Cmd
	Iface string
}

// Spawn re-execs the current binary as an Enroller bound to groupIface,
// handing it backchannel as fd 3. The caller retains ownership of
// backchannel and should keep it open for as long as the group lives.
func Spawn(groupIface string, backchannel *os.File, configPath string) (*Process, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("enroller: resolving self executable: %w", err)
	}

	args := []string{HiddenFlag, groupIface}
	if configPath != "" {
		args = append(args, "-config", configPath)
	}
	cmd := exec.Command(self, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{backchannel}
	setDeathSignal(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("enroller: spawning child for %q: %w", groupIface, err)
	}
	log.Infof("enroller spawned for %s, pid=%d", groupIface, cmd.Process.Pid)
	return &Process{cmd: cmd, Iface: groupIface}, nil
}

// Pid returns the child's process id.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Terminate asks the Enroller to stop. There is no return path for
// HOSTP2PD_TERMINATE_ENROLLER over the write-only back-channel, so Core
// signals the child directly; Run treats SIGTERM as that request.
func (p *Process) Terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

// Wait blocks until the child exits and reports whether it did so
// abnormally.
func (p *Process) Wait() error {
	return p.cmd.Wait()
}
