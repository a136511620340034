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

// Package core implements the Core control engine: the single event loop
// that owns the control-client line channel, drives the P2P/WPS state
// machine, and supervises the Enroller child attached to the currently
// active group.
package core

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hostp2pd/hostp2pd/config"
	"github.com/hostp2pd/hostp2pd/enroller"
	"github.com/hostp2pd/hostp2pd/event"
	"github.com/hostp2pd/hostp2pd/group"
	"github.com/hostp2pd/hostp2pd/hookrunner"
	"github.com/hostp2pd/hostp2pd/lineio"
	"github.com/hostp2pd/hostp2pd/registry"
	"github.com/hostp2pd/hostp2pd/stats"
	"github.com/hostp2pd/hostp2pd/timing"
)

// activeGroup is the bookkeeping for the single group a Core may run.
type activeGroup struct {
	Iface        string
	SSID         string
	Type         string
	PersistentID *int

	enroller *enroller.Process
}

// Group type labels (C2 of the data model).
const (
	GroupPersistent        = "PERSISTENT"
	GroupGenericPersistent = "GENERIC_PERSISTENT"
	GroupAutonomous        = "AUTONOMOUS"
	GroupNegotiated        = "NEGOTIATED"
	GroupExisting          = "EXISTING"
)

// lineChannel is what the Engine needs from its control-client
// connection. *lineio.Channel satisfies it; internal/ctrlsim provides a
// scripted fake for tests that never opens a real pty (SlaveFile returns
// nil, which simply means no Enroller back-channel is available).
type lineChannel interface {
	ReadLine(timeout time.Duration) (string, error)
	WriteLine(s string)
	Pushback(line string)
	SlaveFile() *os.File
	Close() error
}

// Engine runs the Core's single cooperative event loop.
type Engine struct {
	cfg        *config.Config
	configPath string

	ch      lineChannel
	timing  *timing.Controller
	reg     *registry.Registry
	tr      *group.Transactor
	stats   *stats.Registry
	hooks   hookrunner.Runner
	started bool

	wpaErrors   int
	numFailures int
	lastMAC     string

	group *activeGroup

	reloadCh chan struct{}
}

// New builds an Engine from cfg. configPath is remembered so SIGHUP can
// re-read the same file, and is forwarded to any spawned Enroller so it
// sees the same configuration.
func New(cfg *config.Config, configPath string) (*Engine, error) {
	ch, err := lineio.Spawn(cfg.P2PClient, "-i", cfg.Interface)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		configPath: configPath,
		ch:         ch,
		timing:     timing.New(cfg.SelectTimeoutSecs, cfg.MinConnDelay, cfg.MaxScanPolling),
		reg:        registry.New(),
		stats:      stats.New(),
		hooks:      hookrunner.NewExecRunner(cfg.RunProgram),
		reloadCh:   make(chan struct{}, 1),
	}
	e.tr = group.New(e.ch, cfg.MinConnDelay, &e.wpaErrors, cfg.MaxNumWpaCliFailures)
	return e, nil
}

// Stats returns the Engine's metrics registry, so the caller can start a
// monitoring HTTP server and a system sampler alongside Run.
func (e *Engine) Stats() *stats.Registry { return e.stats }

// Close tears down the control-client channel and any running Enroller.
func (e *Engine) Close() error {
	if e.group != nil && e.group.enroller != nil {
		_ = e.group.enroller.Terminate()
	}
	return e.ch.Close()
}

// Run drives the Core until ctx is cancelled, a SIGTERM/SIGINT arrives,
// or the control client dies unrecoverably. It fans out only to watch
// external signals concurrently with the single blocking read loop, the
// way SPTP.RunListener layers a listener goroutine around its own
// blocking reads. The Enroller's liveness is watched by a goroutine that
// startEnroller starts with each Enroller.
func (e *Engine) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case sig := <-sigCh:
				switch sig {
				case syscall.SIGHUP:
					log.Info("SIGHUP received, reloading configuration")
					select {
					case e.reloadCh <- struct{}{}:
					default:
					}
				default:
					log.Infof("%s received, terminating", sig)
					return errTerminated
				}
			}
		}
	})

	eg.Go(func() error {
		return e.loop(ctx)
	})

	err := eg.Wait()
	if errors.Is(err, errTerminated) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// errTerminated signals a clean operator-requested shutdown.
var errTerminated = errors.New("core: terminated by signal")

// loop is the single cooperative event loop described in the
// concurrency model: one blocking-with-timeout read, dispatched in
// arrival order, with reload requests and timeouts handled inline.
func (e *Engine) loop(ctx context.Context) error {
	if err := e.runStartup(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.reloadCh:
			if err := e.reload(); err != nil {
				log.Errorf("reload failed, keeping previous configuration: %v", err)
			}
			continue
		default:
		}

		line, err := e.ch.ReadLine(e.timing.CurrentTimeout())
		if errors.Is(err, lineio.ErrTimeout) {
			if e.timing.OnTimeout() {
				e.ch.WriteLine("p2p_find")
			}
			continue
		}
		if err != nil {
			log.Errorf("control client channel closed: %v", err)
			return err
		}

		if group.IsControlClientError(line) {
			e.wpaErrors++
			log.Warningf("control client error (%d/%d): %s", e.wpaErrors, e.cfg.MaxNumWpaCliFailures, line)
			if e.wpaErrors > e.cfg.MaxNumWpaCliFailures {
				return errors.New("core: too many control-client failures, terminating")
			}
			continue
		}

		if mac, name, typ, ok := registry.DecodeRegister(line); ok {
			e.reg.Put(mac, name, typ)
			continue
		}
		if tag, ok := decodeStatistics(line); ok {
			e.stats.IncEvent(tag)
			continue
		}
		if n, ok := decodeActiveSessions(line); ok {
			e.onActiveSessions(n)
			continue
		}

		ev := event.Parse(line)
		if ev.Tag != "" {
			e.stats.IncEvent(ev.Tag)
		}
		e.stats.SetLastResponseMessage(ev.Raw)
		e.timing.OnEvent(ev.Tag, time.Now())
		e.dispatch(ev)
	}
}

// reload re-reads the configuration file in place and pushes the new
// supplicant settings, per the Reload contract: it never rebuilds the
// running process.
func (e *Engine) reload() error {
	if e.configPath == "" {
		return nil
	}
	if err := e.cfg.Reload(e.configPath); err != nil {
		return err
	}
	e.ch.WriteLine("reconfigure")
	if err := e.tr.ConfigureWPA(e.cfg.ConfigParms, e.cfg.SaveConfigEnabled); err != nil {
		log.Warningf("reload: pushing config_parms failed: %v", err)
	}
	return nil
}
