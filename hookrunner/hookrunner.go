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

// Package hookrunner invokes the external start/stop/connect/disconnect
// hook program configured as run_program. The program itself is opaque
// to the core; this package only knows how to call it and how to keep
// the start_group/stop_group actions strictly alternating.
package hookrunner

import (
	"context"
	"fmt"
	"os/exec"

	log "github.com/sirupsen/logrus"
)

// Valid hook actions.
const (
	ActionStarted      = "started"
	ActionTerminated   = "terminated"
	ActionStartGroup   = "start_group"
	ActionStopGroup    = "stop_group"
	ActionConnect      = "connect"
	ActionDisconnect   = "disconnect"
)

// Runner invokes the configured hook program.
type Runner interface {
	Run(action string, args ...string) error
}

// ExecRunner shells out to program for every hook invocation, the way
// calnex's external-tool wrappers do.
type ExecRunner struct {
	Program string

	groupStarted bool
}

// NewExecRunner returns a Runner that shells out to program. An empty
// program makes every call a no-op, which is the expected configuration
// when run_program is unset.
func NewExecRunner(program string) *ExecRunner {
	return &ExecRunner{Program: program}
}

// Run invokes "$run_program <action> args...". start_group/stop_group
// are enforced to alternate: a second consecutive start_group (or a
// stop_group without a preceding start_group) is refused rather than
// silently invoked twice.
func (r *ExecRunner) Run(action string, args ...string) error {
	if r.Program == "" {
		log.Debugf("run_program unset, skipping hook %q", action)
		return nil
	}
	switch action {
	case ActionStartGroup:
		if r.groupStarted {
			return fmt.Errorf("hookrunner: start_group invoked twice without an intervening stop_group")
		}
		r.groupStarted = true
	case ActionStopGroup:
		if !r.groupStarted {
			return fmt.Errorf("hookrunner: stop_group invoked without a preceding start_group")
		}
		r.groupStarted = false
	}

	cmdArgs := append([]string{action}, args...)
	cmd := exec.CommandContext(context.Background(), r.Program, cmdArgs...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("running hook %q %v: %w (%s)", r.Program, cmdArgs, err, out)
	}
	return nil
}
