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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"github.com/hostp2pd/hostp2pd/config"
	"github.com/hostp2pd/hostp2pd/core"
	"github.com/hostp2pd/hostp2pd/enroller"
	"github.com/hostp2pd/hostp2pd/redact"
	"github.com/hostp2pd/hostp2pd/stats"
)

// prepareConfig loads cfgPath over the defaults and layers any CLI
// overrides that were explicitly set, warning on each override the way
// sptp's prepareConfig does.
func prepareConfig(cfgPath, iface string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.ReadConfig(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("reading config from %q: %w", cfgPath, err)
		}
	} else {
		cfg = config.DefaultConfig()
	}
	if iface != "" && iface != cfg.Interface {
		log.Warningf("overriding interface from CLI flag")
		cfg.Interface = iface
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debugf("config: %+v", cfg)
	return cfg, nil
}

// doWork runs the Core engine to completion: the metrics server and
// system sampler run alongside it for as long as the process lives.
func doWork(cfg *config.Config, configPath string) error {
	e, err := core.New(cfg, configPath)
	if err != nil {
		return err
	}
	defer e.Close()

	reg := e.Stats()
	if cfg.MonitoringPort != 0 {
		go func() {
			if err := reg.Start(cfg.MonitoringPort); err != nil {
				log.Errorf("stats server stopped: %v", err)
			}
		}()
	}
	sampler, err := stats.NewSysSampler(reg)
	if err != nil {
		log.Warningf("system sampler unavailable: %v", err)
	} else {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go sampler.Run(ctx, cfg.SelectTimeoutSecs.Normal)
	}

	fmt.Println(color.GreenString("hostp2pd"), "starting on", cfg.Interface)
	return e.Run(context.Background())
}

func setupLogging(verbose bool, cfg *config.Config) {
	log.SetLevel(log.InfoLevel)
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
	if cfg.PIN != "" {
		log.SetFormatter(redact.New(&log.TextFormatter{FullTimestamp: true}, redact.StaticSecret(cfg.PIN)))
	}
}

func main() {
	var (
		verboseFlag       bool
		configFlag        string
		ifaceFlag         string
		enrollerIfaceFlag string
	)

	flag.BoolVar(&verboseFlag, "verbose", false, "verbose output")
	flag.StringVar(&configFlag, "config", "", "path to the YAML config file")
	flag.StringVar(&ifaceFlag, "iface", "", "p2p-dev interface to use, overrides config")
	flag.StringVar(&enrollerIfaceFlag, enroller.HiddenFlag[1:], "", "internal: run as the Enroller child bound to this group interface")
	flag.Parse()

	log.SetLevel(log.InfoLevel)
	if verboseFlag {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := prepareConfig(configFlag, ifaceFlag)
	if err != nil {
		log.Fatal(err)
	}
	setupLogging(verboseFlag, cfg)

	if enrollerIfaceFlag != "" {
		if err := enroller.Run(cfg, enrollerIfaceFlag); err != nil {
			log.Fatal(color.RedString("enroller exited: %v", err))
		}
		return
	}

	if err := doWork(cfg, configFlag); err != nil {
		log.Fatal(color.RedString("hostp2pd exited: %v", err))
	}
}
