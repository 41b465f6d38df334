// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dump renders the analyzer's optional diagnostic artifacts:
// DOT visualizations of the call
// graph, the Petri net, and the explored reachability graph, plus JSON
// listings of atomic/channel sites and of the final detector reports.
package dump

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/renameio/v2"

	"github.com/aclements/go-concur/internal/cgraph"
	"github.com/aclements/go-concur/internal/detect"
	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/petri"
	"github.com/aclements/go-concur/internal/syncinv"
)

// WriteReachabilityDot renders rg as a DOT digraph of markings connected
// by the transitions that produced them, with deadlock markings and
// recorded atomic races highlighted.
func WriteReachabilityDot(net *petri.Net, rg *petri.ReachabilityGraph, path string) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "digraph reachability {\n")
	fmt.Fprintf(&buf, "  tooltip=\" \";\n")

	deadlocked := make(map[int]bool, len(rg.Deadlocks))
	for _, d := range rg.Deadlocks {
		deadlocked[d] = true
	}
	raced := make(map[int]bool)
	for _, r := range rg.AtomicRaces {
		raced[r.State] = true
	}

	transitions := net.Transitions()
	for i := range rg.Markings {
		props := ""
		switch {
		case deadlocked[i]:
			props = ",color=red,style=filled,fillcolor=mistyrose"
		case raced[i]:
			props = ",color=orange,style=filled,fillcolor=lightyellow"
		}
		fmt.Fprintf(&buf, "  m%d [label=%q%s];\n", i, fmt.Sprintf("m%d", i), props)
	}
	for _, e := range rg.Edges {
		label := transitions[e.Transition].Name
		fmt.Fprintf(&buf, "  m%d -> m%d [label=%q];\n", e.From, e.To, label)
	}
	fmt.Fprintf(&buf, "}\n")

	return renameio.WriteFile(path, buf.Bytes(), 0o644)
}

// WriteReports renders reports as a JSON array to path, atomically.
func WriteReports(reports []detect.Report, path string) error {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("dump: marshaling reports: %w", err)
	}
	data = append(data, '\n')
	return renameio.WriteFile(path, data, 0o644)
}

// WriteCallGraphDot renders cg as a DOT digraph, one node per instance
// labeled by its definition, deduplicating the multigraph's parallel
// call-site edges down to one drawn edge per caller/callee pair.
func WriteCallGraphDot(prog *ir.Program, cg *cgraph.Graph, path string) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "digraph callgraph {\n")
	for _, inst := range prog.AllInstances() {
		fmt.Fprintf(&buf, "  n%d [label=%q];\n", inst.Index, inst.String())
	}
	type edgeKey struct{ from, to int }
	seen := make(map[edgeKey]bool)
	for _, inst := range prog.AllInstances() {
		for _, callee := range cg.Callees(inst.Index) {
			k := edgeKey{inst.Index, callee}
			if seen[k] {
				continue
			}
			seen[k] = true
			fmt.Fprintf(&buf, "  n%d -> n%d;\n", inst.Index, callee)
		}
	}
	fmt.Fprintf(&buf, "}\n")
	return renameio.WriteFile(path, buf.Bytes(), 0o644)
}

// WriteNetDot renders net as a bipartite DOT digraph: place nodes drawn
// as circles, transition nodes as boxes labeled by their kind, arcs
// labeled by weight.
func WriteNetDot(net *petri.Net, path string) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "digraph net {\n")
	for _, p := range net.Places() {
		fmt.Fprintf(&buf, "  p%d [shape=circle,label=%q];\n", p.Index, p.Name)
	}
	for _, t := range net.Transitions() {
		fmt.Fprintf(&buf, "  t%d [shape=box,label=%q];\n", t.Index, t.Label.Kind.String())
		for _, p := range net.Places() {
			if w := net.InputWeight(p.Index, t.Index); w > 0 {
				fmt.Fprintf(&buf, "  p%d -> t%d [label=%d];\n", p.Index, t.Index, w)
			}
			if w := net.OutputWeight(p.Index, t.Index); w > 0 {
				fmt.Fprintf(&buf, "  t%d -> p%d [label=%d];\n", t.Index, p.Index, w)
			}
		}
	}
	fmt.Fprintf(&buf, "}\n")
	return renameio.WriteFile(path, buf.Bytes(), 0o644)
}

// site is one atomic or channel-endpoint site in the JSON site listing.
type site struct {
	Kind      string `json:"kind"`
	Alias     string `json:"alias"`
	Direction string `json:"direction,omitempty"`
	Span      string `json:"span"`
}

// WriteSites renders every atomic and channel-endpoint site reg
// discovered as a JSON array, atomically.
func WriteSites(reg *syncinv.Registry, path string) error {
	var sites []site
	for _, place := range reg.Places {
		for _, a := range place.Atomic {
			sites = append(sites, site{Kind: "Atomic", Alias: a.Alias.String(), Span: string(a.Span)})
		}
		for _, c := range place.Chan {
			dir := "Sender"
			if c.Direction == syncinv.ChannelReceiver {
				dir = "Receiver"
			}
			sites = append(sites, site{Kind: "Channel", Alias: c.Alias.String(), Direction: dir, Span: string(c.Span)})
		}
	}
	data, err := json.MarshalIndent(sites, "", "  ")
	if err != nil {
		return fmt.Errorf("dump: marshaling sites: %w", err)
	}
	data = append(data, '\n')
	return renameio.WriteFile(path, data, 0o644)
}
