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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hostp2pd/hostp2pd/config"
	"github.com/hostp2pd/hostp2pd/group"
	"github.com/hostp2pd/hostp2pd/hookrunner"
	"github.com/hostp2pd/hostp2pd/lineio"
	"github.com/hostp2pd/hostp2pd/registry"
	"github.com/hostp2pd/hostp2pd/stats"
	"github.com/hostp2pd/hostp2pd/timing"
)

func boolPtr(b bool) *bool { return &b }

// newTestEngine builds an Engine whose line channel is a real "cat"
// subprocess, so WriteLine calls can be observed by reading them back,
// without ever spawning a real control client or Enroller child.
func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	ch, err := lineio.Spawn("cat")
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })

	e := &Engine{
		cfg:    cfg,
		ch:     ch,
		timing: timing.New(cfg.SelectTimeoutSecs, cfg.MinConnDelay, cfg.MaxScanPolling),
		reg:    registry.New(),
		stats:  stats.New(),
		hooks:  hookrunner.NewExecRunner(""),
	}
	e.tr = group.New(e.ch, cfg.MinConnDelay, &e.wpaErrors, cfg.MaxNumWpaCliFailures)
	return e
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.MinConnDelay = 50 * time.Millisecond
	cfg.PBCInUse = boolPtr(true)
	return cfg
}
