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

// Package config holds the declarative policy that drives the Core and
// Enroller engines: enrolment method, PIN source, white-list, persistent
// group preference, timeouts and retry counts.
package config

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"
)

// AutoInterface is the "auto" interface value. The engine passes it to the
// control client unchanged (as "-i auto"); it does not resolve it to a
// p2p-dev-* interface itself.
const AutoInterface = "auto"

// TimeoutLevels holds the per-level read timeout used by the timing controller.
type TimeoutLevels struct {
	Normal   time.Duration `yaml:"normal"`
	Connect  time.Duration `yaml:"connect"`
	Long     time.Duration `yaml:"long"`
	Enroller time.Duration `yaml:"enroller"`
}

// Validate checks that every level is a positive duration.
func (t *TimeoutLevels) Validate() error {
	for name, d := range map[string]time.Duration{
		"normal": t.Normal, "connect": t.Connect, "long": t.Long, "enroller": t.Enroller,
	} {
		if d <= 0 {
			return fmt.Errorf("select_timeout_secs.%s must be greater than zero", name)
		}
	}
	return nil
}

// Config specifies hostp2pd run options.
type Config struct {
	Interface string `yaml:"interface"`
	P2PClient string `yaml:"p2p_client"`

	PIN       string `yaml:"pin"`
	PINModule string `yaml:"pin_module"`

	// PBCInUse is nil when the enrolment method should be asked of the
	// supplicant via "get config_methods".
	PBCInUse *bool `yaml:"pbc_in_use"`

	ActivatePersistentGroup bool `yaml:"activate_persistent_group"`
	ActivateAutonomousGroup bool `yaml:"activate_autonomous_group"`
	PersistentNetworkID     *int `yaml:"persistent_network_id"`
	DynamicGroup            bool `yaml:"dynamic_group"`

	PBCWhiteList []string `yaml:"pbc_white_list"`

	NetworkParms map[string]string `yaml:"network_parms"`
	ConfigParms  map[string]string `yaml:"config_parms"`

	SSIDPostfix      string `yaml:"ssid_postfix"`
	P2PGroupAddOpts  string `yaml:"p2p_group_add_opts"`
	P2PConnectOpts   string `yaml:"p2p_connect_opts"`

	SelectTimeoutSecs TimeoutLevels `yaml:"select_timeout_secs"`
	MinConnDelay      time.Duration `yaml:"min_conn_delay"`

	MaxNumFailures          int `yaml:"max_num_failures"`
	MaxNumWpaCliFailures    int `yaml:"max_num_wpa_cli_failures"`
	MaxScanPolling          int `yaml:"max_scan_polling"`
	WpaSupplicantMinErrWarn int `yaml:"wpa_supplicant_min_err_warn"`

	MaxNegotiationTime time.Duration `yaml:"max_negotiation_time"`
	SaveConfigEnabled  bool          `yaml:"save_config_enabled"`

	RunProgram     string `yaml:"run_program"`
	MonitoringPort int    `yaml:"monitoring_port"`

	// pinSource is built from PIN/PINModule by PINSourceOf, not serialized.
	pinSource PINSource `yaml:"-"`
}

// PINSourceOf returns the configured PIN supplier, building it lazily from
// PIN/PINModule the first time it is needed.
func (c *Config) PINSourceOf() PINSource {
	if c.pinSource != nil {
		return c.pinSource
	}
	if c.PINModule != "" {
		c.pinSource = ScriptPIN{Path: c.PINModule}
	} else {
		c.pinSource = StaticPIN{PIN: c.PIN}
	}
	return c.pinSource
}

// PBCWhiteListed reports whether name is allowed to enrol via PBC: the list
// is either empty (everyone allowed) or contains the name verbatim.
func (c *Config) PBCWhiteListed(name string) bool {
	if len(c.PBCWhiteList) == 0 {
		return true
	}
	for _, n := range c.PBCWhiteList {
		if n == name {
			return true
		}
	}
	return false
}

// DefaultConfig returns Config initialized with default values.
func DefaultConfig() *Config {
	return &Config{
		Interface: AutoInterface,
		P2PClient: "wpa_cli",
		SelectTimeoutSecs: TimeoutLevels{
			Normal:   5 * time.Second,
			Connect:  20 * time.Second,
			Long:     30 * time.Second,
			Enroller: 5 * time.Second,
		},
		MinConnDelay:            5 * time.Second,
		MaxNumFailures:          3,
		MaxNumWpaCliFailures:    5,
		MaxScanPolling:          0,
		MaxNegotiationTime:      120 * time.Second,
		SaveConfigEnabled:       true,
		WpaSupplicantMinErrWarn: 0,
		MonitoringPort:          4269,
	}
}

// Validate checks that Config is internally consistent.
func (c *Config) Validate() error {
	if c.Interface == "" {
		return fmt.Errorf("interface must be specified (or %q)", AutoInterface)
	}
	if c.P2PClient == "" {
		return fmt.Errorf("p2p_client must be specified")
	}
	if err := c.SelectTimeoutSecs.Validate(); err != nil {
		return err
	}
	if c.MinConnDelay <= 0 {
		return fmt.Errorf("min_conn_delay must be greater than zero")
	}
	if c.MaxNumFailures < 0 {
		return fmt.Errorf("max_num_failures must be 0 or positive")
	}
	if c.MaxNumWpaCliFailures <= 0 {
		return fmt.Errorf("max_num_wpa_cli_failures must be greater than zero")
	}
	if c.MaxScanPolling < 0 {
		return fmt.Errorf("max_scan_polling must be 0 or positive")
	}
	if c.ActivatePersistentGroup && c.ActivateAutonomousGroup {
		log.Warning("both activate_persistent_group and activate_autonomous_group set, persistent wins")
		c.ActivateAutonomousGroup = false
	}
	if c.PersistentNetworkID != nil {
		key := fmt.Sprintf("%d", *c.PersistentNetworkID)
		if _, collide := c.NetworkParms[key]; collide {
			return fmt.Errorf("persistent_network_id %d collides with an entry already present in network_parms", *c.PersistentNetworkID)
		}
	}
	if c.PINModule == "" && c.PIN == "" && c.PBCInUse != nil && !*c.PBCInUse {
		return fmt.Errorf("pin or pin_module must be set when pbc_in_use is false")
	}
	return nil
}

// ReadConfig reads config from a YAML file, layering it over the defaults.
func ReadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %q: %w", path, err)
	}
	return c, nil
}

// Reload re-reads path and, if it validates, replaces the receiver's fields
// in place. It does not rebuild any running process; callers are
// responsible for propagating the change (reconfigure the supplicant,
// signal the Enroller).
func (c *Config) Reload(path string) error {
	next, err := ReadConfig(path)
	if err != nil {
		return err
	}
	*c = *next
	return nil
}
