// Package config loads dobcore's runtime configuration, following the
// teacher's convention of a single configuration struct constructed once
// at program start (§9's "global singletons" design note, restated as
// explicit construction). It is the concrete C10 component added by
// SPEC_FULL.md.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every environment-derived and operator-tunable knob dobcore
// needs. Load returns an error on any validation failure, which
// cmd/dobnode maps to exit code 1 (§6).
type Config struct {
	// SafirRuntime selects the runtime root (SAFIR_RUNTIME), used as the
	// base directory for the startup synchronizer's state.
	SafirRuntime string

	// SafirInstance selects the logical instance (SAFIR_INSTANCE),
	// folded into shared-resource naming.
	SafirInstance string

	// LLLLogLevel is 0-9, controlling low-level log verbosity
	// (LLL_LOGLEVEL).
	LLLLogLevel int

	// AdmissionCap is the per-process maximum of simultaneously open
	// connections enforced by the arbiter (§4.6).
	AdmissionCap int

	// CRCEnabled toggles the optional CRC32 trailer on state
	// publications (§4.5); both ends of a deployment must agree.
	CRCEnabled bool

	AnnouncePeriod time.Duration
	PublishPeriod  time.Duration
	PollPeriod     time.Duration

	NodeName string
	BindAddr string
}

// Load reads configuration from the process environment (with the
// SAFIR_*/LLL_* names mandated by §6) plus dobcore-specific DOB_* knobs,
// applying defaults for anything unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("SAFIR_RUNTIME", "/var/lib/safir")
	v.SetDefault("SAFIR_INSTANCE", "0")
	v.SetDefault("LLL_LOGLEVEL", 0)
	v.SetDefault("DOB_ADMISSION_CAP", 64)
	v.SetDefault("DOB_CRC_ENABLED", true)
	v.SetDefault("DOB_ANNOUNCE_PERIOD", "1s")
	v.SetDefault("DOB_PUBLISH_PERIOD", "1s")
	v.SetDefault("DOB_POLL_PERIOD", "2s")
	v.SetDefault("DOB_NODE_NAME", "dob-node")
	v.SetDefault("DOB_BIND_ADDR", "0.0.0.0")

	cap := v.GetInt("DOB_ADMISSION_CAP")
	if cap <= 0 {
		return nil, fmt.Errorf("config: DOB_ADMISSION_CAP must be positive, got %d", cap)
	}

	logLevel := v.GetInt("LLL_LOGLEVEL")
	if logLevel < 0 || logLevel > 9 {
		return nil, fmt.Errorf("config: LLL_LOGLEVEL must be in [0,9], got %d", logLevel)
	}

	announce := v.GetDuration("DOB_ANNOUNCE_PERIOD")
	publish := v.GetDuration("DOB_PUBLISH_PERIOD")
	poll := v.GetDuration("DOB_POLL_PERIOD")
	if announce <= 0 || publish <= 0 || poll <= 0 {
		return nil, fmt.Errorf("config: DOB_*_PERIOD values must be positive durations")
	}

	return &Config{
		SafirRuntime:   v.GetString("SAFIR_RUNTIME"),
		SafirInstance:  v.GetString("SAFIR_INSTANCE"),
		LLLLogLevel:    logLevel,
		AdmissionCap:   cap,
		CRCEnabled:     v.GetBool("DOB_CRC_ENABLED"),
		AnnouncePeriod: announce,
		PublishPeriod:  publish,
		PollPeriod:     poll,
		NodeName:       v.GetString("DOB_NODE_NAME"),
		BindAddr:       v.GetString("DOB_BIND_ADDR"),
	}, nil
}
