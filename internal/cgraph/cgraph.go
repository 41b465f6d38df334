// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cgraph builds the call graph: a directed graph of function
// instances whose edges carry call-site metadata, including the
// ThreadControl tag that marks concurrency-API call sites.
package cgraph

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/multi"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/aclements/go-concur/internal/ir"
)

// ThreadControl names which concurrency API a call site matched.
type ThreadControl int

const (
	NotThreadControl ThreadControl = iota
	Spawn
	Join
	ScopeSpawn
	ScopeJoin
	RayonJoin
	AsyncSpawn
	AsyncJoin
	CondvarWait
	CondvarNotify
	ChannelSend
	ChannelRecv
)

func (tc ThreadControl) String() string {
	switch tc {
	case Spawn:
		return "Spawn"
	case Join:
		return "Join"
	case ScopeSpawn:
		return "ScopeSpawn"
	case ScopeJoin:
		return "ScopeJoin"
	case RayonJoin:
		return "RayonJoin"
	case AsyncSpawn:
		return "AsyncSpawn"
	case AsyncJoin:
		return "AsyncJoin"
	case CondvarWait:
		return "CondvarWait"
	case CondvarNotify:
		return "CondvarNotify"
	case ChannelSend:
		return "ChannelSend"
	case ChannelRecv:
		return "ChannelRecv"
	default:
		return "NotThreadControl"
	}
}

// SiteTag discriminates the three call-site tag shapes.
type SiteTag int

const (
	TagDirect SiteTag = iota
	TagClosureDef
	TagThreadControl
)

// CallSite is the metadata attached to one call-graph edge.
type CallSite struct {
	Tag ThreadControl // NotThreadControl unless Tag is TagThreadControl

	SiteTag     SiteTag
	Location    ir.Span
	ClosureVal  int // TagClosureDef: the local the closure was captured/constructed at
	Destination ir.AliasID
	HasDest     bool
	CallerBB    int
	CallerInstr int // index of the Call terminator's owning basic block (redundant convenience)
}

type node int64

func (n node) ID() int64 { return int64(n) }

type edge struct {
	f, t graph.Node
	id   int64
	site CallSite
}

func (e edge) From() graph.Node         { return e.f }
func (e edge) To() graph.Node           { return e.t }
func (e edge) ID() int64                { return e.id }
func (e edge) ReversedLine() graph.Line { return edge{e.t, e.f, e.id, e.site} }

// Graph is the call graph over ir.Instance.Index values. It is built
// once by Build and is read-only thereafter.
type Graph struct {
	g       *multi.DirectedGraph
	nextID  int64
	bodies  map[int]bool // instance index -> has a body
	nInsts  int
	spawnBy map[ir.DefID]map[ir.AliasID]map[ir.DefID]bool // caller def -> local -> spawned callee defs
}

// Build constructs the call graph from every instance of prog. For each
// Call terminator it resolves the static callee (when known) and adds an
// edge tagged per classify's result. Instances whose body is unavailable
// still get a node (so they can appear in paths) but contribute no
// outgoing edges.
func Build(prog *ir.Program, cfg ClassifyConfig) *Graph {
	cg := &Graph{
		g:       multi.NewDirectedGraph(),
		bodies:  make(map[int]bool),
		spawnBy: make(map[ir.DefID]map[ir.AliasID]map[ir.DefID]bool),
	}
	insts := prog.AllInstances()
	cg.nInsts = len(insts)
	for _, inst := range insts {
		cg.g.AddNode(node(inst.Index))
		cg.bodies[inst.Index] = prog.IsMIRAvailable(inst.Def)
	}

	for _, inst := range insts {
		if !cg.bodies[inst.Index] {
			continue
		}
		body := prog.InstanceMIR(inst)
		for bi, bb := range body.Blocks {
			for _, s := range bb.Statements {
				cg.recordClosureDef(prog, inst, s)
			}
			term := bb.Term
			if term.Kind != ir.TermCall {
				continue
			}
			callee, ok := prog.TryResolve(term.Call.Callee, inst.Substs)
			tag := Classify(prog, term.Call.Callee, cfg)

			var destAlias ir.AliasID
			hasDest := term.Call.HasDest
			if hasDest {
				destAlias = ir.AliasID{Instance: inst.Index, Local: term.Call.Destination.Local}
			}
			site := CallSite{
				Location:    term.Span,
				Destination: destAlias,
				HasDest:     hasDest,
				CallerBB:    bi,
				CallerInstr: bi,
			}
			if tag != NotThreadControl {
				site.SiteTag = TagThreadControl
				site.Tag = tag
			} else {
				site.SiteTag = TagDirect
			}

			if tag == Spawn || tag == ScopeSpawn || tag == AsyncSpawn {
				cg.recordSpawn(inst.Def, destAlias, body, bi, term.Call.Args)
			}

			if !ok {
				// Unresolved generic or indirect call: there is
				// no outgoing edge to add, but the analysis
				// continues without it.
				continue
			}
			cg.addEdge(inst.Index, callee.Index, site)
		}
	}
	return cg
}

// recordClosureDef adds a ClosureDef-tagged edge from caller to the
// resolved instance of any closure it constructs via an RvAggregate,
// recording the local the closure value was built at. This is the
// mechanism internal/alias's closure-upvar resolution uses to find a
// closure's definition-site callers.
func (cg *Graph) recordClosureDef(prog *ir.Program, caller *ir.Instance, s ir.Statement) {
	if s.Kind != ir.StmtAssign || s.RHS.Kind != ir.RvAggregate || !s.RHS.IsClosure || s.RHS.ClosureDef == "" {
		return
	}
	target, ok := prog.TryResolve(s.RHS.ClosureDef, caller.Substs)
	if !ok {
		return
	}
	site := CallSite{
		SiteTag:    TagClosureDef,
		Location:   s.Span,
		ClosureVal: s.LHS.Local,
	}
	cg.addEdge(caller.Index, target.Index, site)
}

// recordSpawn resolves which closure body a spawn-like call site hands
// off, by looking back through the caller's own block for the
// RvAggregate that built the closure value passed as an argument. The
// closure argument is, by convention, the
// first argument (args[1] for scope-spawn, whose args[0] is the scope
// handle), but every argument is tried since the convention is not
// enforced by the MIR shape itself.
func (cg *Graph) recordSpawn(caller ir.DefID, joinHandle ir.AliasID, body *ir.Body, bi int, args []ir.Operand) {
	if cg.spawnBy[caller] == nil {
		cg.spawnBy[caller] = make(map[ir.AliasID]map[ir.DefID]bool)
	}
	if cg.spawnBy[caller][joinHandle] == nil {
		cg.spawnBy[caller][joinHandle] = make(map[ir.DefID]bool)
	}
	dest := cg.spawnBy[caller][joinHandle]
	for _, a := range args {
		if a.Kind == ir.OperandConstant {
			continue
		}
		if def, ok := resolveClosureDef(body, bi, a.Place.Local); ok {
			dest[def] = true
		}
	}
}

// resolveClosureDef walks backward from block bi's last statement for an
// assignment of local that builds a closure value, returning the def id of
// its body. It does not cross block boundaries: a closure captured in a
// predecessor block and merely forwarded through moves is left Unknown here
// and is instead narrowed by the points-to analysis in internal/alias.
func resolveClosureDef(body *ir.Body, bi, local int) (ir.DefID, bool) {
	if bi < 0 || bi >= len(body.Blocks) {
		return "", false
	}
	stmts := body.Blocks[bi].Statements
	for i := len(stmts) - 1; i >= 0; i-- {
		s := stmts[i]
		if s.Kind != ir.StmtAssign || s.LHS.Local != local {
			continue
		}
		if s.RHS.Kind == ir.RvAggregate && s.RHS.IsClosure && s.RHS.ClosureDef != "" {
			return s.RHS.ClosureDef, true
		}
		return "", false
	}
	return "", false
}

func (cg *Graph) addEdge(from, to int, site CallSite) {
	e := edge{f: node(from), t: node(to), id: cg.nextID, site: site}
	cg.nextID++
	cg.g.SetLine(e)
}

// NumInstances returns the number of instances the graph was built over.
func (cg *Graph) NumInstances() int { return cg.nInsts }

// HasBody reports whether instance idx has a translatable body.
func (cg *Graph) HasBody(idx int) bool { return cg.bodies[idx] }

// Callsites returns every call site from src to dst.
func (cg *Graph) Callsites(src, dst int) []CallSite {
	lines := cg.g.Lines(int64(src), int64(dst))
	var out []CallSite
	for lines.Next() {
		out = append(out, lines.Line().(edge).site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out
}

// Callers returns the instance indices of every caller of dst.
func (cg *Graph) Callers(dst int) []int {
	it := cg.g.To(int64(dst))
	var out []int
	for it.Next() {
		out = append(out, int(it.Node().ID()))
	}
	sort.Ints(out)
	return out
}

// Callees returns the instance indices of every callee of src.
func (cg *Graph) Callees(src int) []int {
	it := cg.g.From(int64(src))
	var out []int
	for it.Next() {
		out = append(out, int(it.Node().ID()))
	}
	sort.Ints(out)
	return out
}

// ReachableFromEntry returns every instance index reachable (by call-graph
// edge, transitively) from entry.
func (cg *Graph) ReachableFromEntry(entry int) map[int]bool {
	return cg.ReachableFromRoots([]int{entry})
}

// ReachableFromRoots is the BFS closure over the forward edge set, used
// to filter the set of functions the translator visits.
func (cg *Graph) ReachableFromRoots(roots []int) map[int]bool {
	reached := make(map[int]bool)
	var bf traverse.BreadthFirst
	for _, r := range roots {
		if reached[r] {
			continue
		}
		bf.Reset()
		bf.Walk(cg.g, node(r), func(n graph.Node, d int) bool {
			reached[int(n.ID())] = true
			return false
		})
	}
	return reached
}

// AllSimplePaths enumerates every simple (node-non-repeating) path from
// src to dst in call-graph order, used by the deadlock detectors to
// render a sample caller chain.
func (cg *Graph) AllSimplePaths(src, dst int) [][]int {
	var out [][]int
	var path []int
	onPath := make(map[int]bool)
	const maxPaths = 64 // a sample of paths is enough for a report

	var visit func(n int)
	visit = func(n int) {
		if len(out) >= maxPaths {
			return
		}
		path = append(path, n)
		onPath[n] = true
		if n == dst {
			out = append(out, append([]int(nil), path...))
		} else {
			for _, next := range cg.Callees(n) {
				if !onPath[next] {
					visit(next)
				}
			}
		}
		onPath[n] = false
		path = path[:len(path)-1]
	}
	visit(src)
	return out
}

// SpawnLocals returns, for caller, the map from JoinHandle-receiving
// local to the set of def ids that may have been spawned there -- the
// table the translator's Join wiring consults.
func (cg *Graph) SpawnLocals(caller ir.DefID) map[ir.AliasID][]ir.DefID {
	m := cg.spawnBy[caller]
	out := make(map[ir.AliasID][]ir.DefID, len(m))
	for k, set := range m {
		defs := make([]ir.DefID, 0, len(set))
		for d := range set {
			defs = append(defs, d)
		}
		sort.Slice(defs, func(i, j int) bool { return defs[i] < defs[j] })
		out[k] = defs
	}
	return out
}
