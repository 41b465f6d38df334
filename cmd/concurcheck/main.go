// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command concurcheck performs static concurrency-bug analysis of a MIR
// dump produced by a host compiler plugin.
//
// It runs the five-stage analysis pipeline: pointer analysis, call-graph
// construction, Petri-net translation, state-space exploration, and the
// double-lock/conflict-cycle/condvar-misuse, data-race, and
// atomicity-violation detectors. Optional flags dump the intermediate
// graphs as DOT and the site listings and reports as JSON.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/aclements/go-concur/internal/alias"
	"github.com/aclements/go-concur/internal/cgraph"
	"github.com/aclements/go-concur/internal/config"
	"github.com/aclements/go-concur/internal/detect"
	"github.com/aclements/go-concur/internal/dump"
	"github.com/aclements/go-concur/internal/explorer"
	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/lockdataflow"
	"github.com/aclements/go-concur/internal/petri"
	"github.com/aclements/go-concur/internal/syncinv"
	"github.com/aclements/go-concur/internal/translate"
)

func main() {
	var (
		mirPath      string
		configPath   string
		outCallGraph string
		outNet       string
		outReach     string
		outSites     string
		outReports   string
		stateLimit   int
		detectorStr  string
	)
	flag.StringVar(&mirPath, "mir", "", "read the MIR dump from `file` (default stdin)")
	flag.StringVar(&configPath, "config", "", "load the analyzer configuration from `file` (TOML)")
	flag.StringVar(&outCallGraph, "callgraph", "", "write the call graph in dot to `file`")
	flag.StringVar(&outNet, "net", "", "write the Petri net in dot to `file`")
	flag.StringVar(&outReach, "reachability", "", "write the reachability graph in dot to `file`")
	flag.StringVar(&outSites, "sites", "", "write the atomic/channel site listing as JSON to `file`")
	flag.StringVar(&outReports, "reports", "", "write the detector reports as JSON to `file`")
	flag.IntVar(&stateLimit, "statelimit", 0, "override the configured explorer state limit (0 keeps the config value)")
	flag.StringVar(&detectorStr, "detector", "", "override the configured detector kind (Deadlock|AtomicityViolation|DataRace|PointsTo|All)")
	flag.Parse()
	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(2)
	}

	if _, err := maxprocs.Set(); err != nil {
		log.Printf("automaxprocs: %v", err)
	}
	if _, err := memlimit.SetGoMemLimitWithOpts(memlimit.WithRatio(0.9)); err != nil {
		log.Printf("automemlimit: %v", err)
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatal(err)
		}
	}
	if stateLimit != 0 {
		cfg.StateLimit = stateLimit
	}
	if detectorStr != "" {
		cfg.DetectorKind = detectorStr
	}

	in := os.Stdin
	if mirPath != "" {
		f, err := os.Open(mirPath)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		in = f
	}
	prog, err := ir.Load(in)
	if err != nil {
		log.Fatalf("loading MIR: %s", err)
	}

	res, err := run(prog, cfg)
	if err != nil {
		log.Fatal(err)
	}

	if outCallGraph != "" {
		if err := dump.WriteCallGraphDot(prog, res.cg, outCallGraph); err != nil {
			log.Fatal(err)
		}
	}
	if outNet != "" {
		if err := dump.WriteNetDot(res.net, outNet); err != nil {
			log.Fatal(err)
		}
	}
	if outReach != "" && res.rg != nil {
		if err := dump.WriteReachabilityDot(res.net, res.rg, outReach); err != nil {
			log.Fatal(err)
		}
	}
	if outSites != "" {
		if err := dump.WriteSites(res.reg, outSites); err != nil {
			log.Fatal(err)
		}
	}
	if outReports != "" {
		if err := dump.WriteReports(res.reports, outReports); err != nil {
			log.Fatal(err)
		}
	}

	if len(res.reports) == 0 {
		fmt.Println("no bugs found")
	}
	for _, r := range res.reports {
		fmt.Println(formatReport(r))
	}
	if res.rg != nil && res.rg.Truncated {
		fmt.Println("warning: state-space exploration was truncated; reports may be incomplete")
	}
}

// pipelineResult bundles the detector reports plus every intermediate
// artifact the optional dumps need to render.
type pipelineResult struct {
	reports []detect.Report
	net     *petri.Net
	rg      *petri.ReachabilityGraph
	cg      *cgraph.Graph
	reg     *syncinv.Registry
}

// run executes the analysis pipeline over an already-loaded program:
// call graph, pointer analysis, synchronization inventory, net
// translation, lock-lifetime dataflow, state-space exploration (when a
// detector needs it), and the selected detectors.
func run(prog *ir.Program, cfg *config.Config) (*pipelineResult, error) {
	classifyCfg, err := cfg.ClassifyConfig()
	if err != nil {
		return nil, err
	}
	siteCfg, err := cfg.SiteConfig()
	if err != nil {
		return nil, err
	}

	cg := cgraph.Build(prog, classifyCfg)
	aliases := alias.New(prog, cg)
	reg := syncinv.BuildRegistry(prog, aliases, siteCfg)

	detKind := cfg.Detector()
	needsSegment := detKind == detect.All || detKind == detect.AtomicityViolation
	crateFilter := cfg.CrateFilter()
	translateCfg := translate.Config{
		Classify:        classifyCfg,
		Segment:         needsSegment,
		Reduce:          cfg.ReduceNet,
		EntryReachable:  cfg.EntryReachable,
		ConcurrentRoots: cfg.TranslateConcurrentRoots,
		Filter:          crateFilter.AllowsPath,
	}
	net, err := translate.Translate(prog, cg, aliases, reg, translateCfg)
	if err != nil {
		return nil, fmt.Errorf("translating net: %w", err)
	}

	flow := lockdataflow.Run(prog, cg, aliases, reg, classifyCfg)

	var rg *petri.ReachabilityGraph
	if detKind == detect.All || detKind == detect.DataRaceKind || detKind == detect.AtomicityViolation {
		rg = explorer.Explore(net, cfg.ExplorerConfig())
	}

	reports := detect.Run(detect.Inputs{
		Reg:     reg,
		Aliases: aliases,
		CG:      cg,
		Flow:    flow,
		Net:     net,
		RG:      rg,
	}, detKind)

	return &pipelineResult{reports: reports, net: net, rg: rg, cg: cg, reg: reg}, nil
}

func formatReport(r detect.Report) string {
	s := r.Kind.String() + " (" + r.Confidence.String() + "):"
	for _, loc := range r.Locations {
		s += fmt.Sprintf(" %s@%s", loc.PrimitiveKind, loc.Span)
	}
	return s
}
