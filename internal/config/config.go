// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the analyzer's external configuration record
// from a TOML file and resolves it into the typed per-component configs
// the call graph, inventory, explorer, and detectors consume.
package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/aclements/go-concur/internal/cgraph"
	"github.com/aclements/go-concur/internal/detect"
	"github.com/aclements/go-concur/internal/explorer"
	"github.com/aclements/go-concur/internal/syncinv"
)

// RegexBundle is the key-API regex bundle: the thread-control
// classification groups plus the lock-kind recognizers, given as
// raw pattern strings in the TOML file and compiled by Resolve* below.
type RegexBundle struct {
	ScopeSpawn    string `toml:"scope_spawn"`
	ScopeJoin     string `toml:"scope_join"`
	ThreadSpawn   string `toml:"thread_spawn"`
	ThreadJoin    string `toml:"thread_join"`
	RayonJoin     string `toml:"rayon_join"`
	AsyncSpawn    string `toml:"async_spawn"`
	AsyncJoin     string `toml:"async_join"`
	CondvarWait   string `toml:"condvar_wait"`
	CondvarNotify string `toml:"condvar_notify"`
	ChannelSend   string `toml:"channel_send"`
	ChannelRecv   string `toml:"channel_recv"`

	StdMutexLock        string `toml:"std_mutex_lock"`
	ParkingLotMutexLock string `toml:"parking_lot_mutex_lock"`
	SpinMutexLock       string `toml:"spin_mutex_lock"`
	StdRwLockRead       string `toml:"std_rwlock_read"`
	ParkingLotRead      string `toml:"parking_lot_read"`
	SpinRead            string `toml:"spin_read"`
	StdRwLockWrite      string `toml:"std_rwlock_write"`
	ParkingLotWrite     string `toml:"parking_lot_write"`
	SpinWrite           string `toml:"spin_write"`
	CondvarNew          string `toml:"condvar_new"`
}

// Config is the TOML-decoded shape of the analyzer's configuration
// record.
type Config struct {
	StateLimit               int    `toml:"state_limit"` // 0 means unbounded
	EntryReachable           bool   `toml:"entry_reachable"`
	TranslateConcurrentRoots bool   `toml:"translate_concurrent_roots"`
	ReduceNet                bool   `toml:"reduce_net"`
	PorEnabled               bool   `toml:"por_enabled"`
	DetectorKind             string `toml:"detector_kind"` // Deadlock|AtomicityViolation|DataRace|PointsTo|All

	CrateFilterMode  string   `toml:"crate_filter_mode"` // "black", or any other value ("" included) for white; no filter while CrateFilterNames is empty
	CrateFilterNames []string `toml:"crate_filter_names"`

	Regex RegexBundle `toml:"regex"`
}

// Default returns the zero-value configuration: unbounded state limit,
// every boolean option off, the All detector, and no crate filter or
// user regex patterns.
func Default() *Config {
	return &Config{DetectorKind: "All"}
}

// Load decodes path as TOML into a Config.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}
	return cfg, nil
}

func compile(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("config: compiling regex %q: %w", pattern, err)
	}
	return re, nil
}

// ClassifyConfig compiles the thread-control half of the regex bundle
// into the form internal/cgraph.Classify consumes.
func (c *Config) ClassifyConfig() (cgraph.ClassifyConfig, error) {
	var out cgraph.ClassifyConfig
	var err error
	fields := []struct {
		pattern string
		dst     **regexp.Regexp
	}{
		{c.Regex.ScopeSpawn, &out.ScopeSpawn},
		{c.Regex.ScopeJoin, &out.ScopeJoin},
		{c.Regex.ThreadSpawn, &out.ThreadSpawn},
		{c.Regex.ThreadJoin, &out.ThreadJoin},
		{c.Regex.RayonJoin, &out.RayonJoin},
		{c.Regex.AsyncSpawn, &out.AsyncSpawn},
		{c.Regex.AsyncJoin, &out.AsyncJoin},
		{c.Regex.CondvarWait, &out.CondvarWait},
		{c.Regex.CondvarNotify, &out.CondvarNotify},
		{c.Regex.ChannelSend, &out.ChannelSend},
		{c.Regex.ChannelRecv, &out.ChannelRecv},
	}
	for _, f := range fields {
		if *f.dst, err = compile(f.pattern); err != nil {
			return cgraph.ClassifyConfig{}, err
		}
	}
	return out, nil
}

// SiteConfig compiles the lock/condvar-recognizer half of the regex
// bundle into the form internal/syncinv's collectors consume.
func (c *Config) SiteConfig() (syncinv.SiteConfig, error) {
	var out syncinv.SiteConfig
	var err error
	fields := []struct {
		pattern string
		dst     **regexp.Regexp
	}{
		{c.Regex.StdMutexLock, &out.StdMutexLock},
		{c.Regex.ParkingLotMutexLock, &out.ParkingLotMutexLock},
		{c.Regex.SpinMutexLock, &out.SpinMutexLock},
		{c.Regex.StdRwLockRead, &out.StdRwLockRead},
		{c.Regex.ParkingLotRead, &out.ParkingLotRead},
		{c.Regex.SpinRead, &out.SpinRead},
		{c.Regex.StdRwLockWrite, &out.StdRwLockWrite},
		{c.Regex.ParkingLotWrite, &out.ParkingLotWrite},
		{c.Regex.SpinWrite, &out.SpinWrite},
		{c.Regex.CondvarNew, &out.CondvarNew},
	}
	for _, f := range fields {
		if *f.dst, err = compile(f.pattern); err != nil {
			return syncinv.SiteConfig{}, err
		}
	}
	return out, nil
}

// ExplorerConfig resolves the state-space explorer's slice of the
// configuration record.
func (c *Config) ExplorerConfig() explorer.Config {
	return explorer.Config{StateLimit: c.StateLimit, PartialOrderReduction: c.PorEnabled}
}

// Detector resolves the configured detector selection, defaulting to
// All for an empty or unrecognized string.
func (c *Config) Detector() detect.DetectorKind {
	switch c.DetectorKind {
	case "Deadlock":
		return detect.Deadlock
	case "AtomicityViolation":
		return detect.AtomicityViolation
	case "DataRace":
		return detect.DataRaceKind
	case "PointsTo":
		return detect.PointsTo
	default:
		return detect.All
	}
}

// CrateFilter is the resolved white/black crate-name filter.
type CrateFilter struct {
	White bool // true for White(set), false for Black(set); meaningless if Names is empty
	Names map[string]bool
}

// Allows reports whether name passes the filter: always true with no
// filter configured, otherwise membership for White, non-membership for
// Black.
func (f CrateFilter) Allows(name string) bool {
	if len(f.Names) == 0 {
		return true
	}
	if f.White {
		return f.Names[name]
	}
	return !f.Names[name]
}

// AllowsPath applies the filter to the crate component of a fully
// qualified definition path (everything before the first "::").
func (f CrateFilter) AllowsPath(path string) bool {
	if i := strings.Index(path, "::"); i >= 0 {
		path = path[:i]
	}
	return f.Allows(path)
}

// CrateFilter resolves the configured filter mode and name set.
func (c *Config) CrateFilter() CrateFilter {
	names := make(map[string]bool, len(c.CrateFilterNames))
	for _, n := range c.CrateFilterNames {
		names[n] = true
	}
	return CrateFilter{White: c.CrateFilterMode != "black", Names: names}
}
