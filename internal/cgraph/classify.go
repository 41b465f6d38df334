// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgraph

import (
	"regexp"

	"github.com/aclements/go-concur/internal/ir"
)

// ClassifyConfig is the user-configured regex bundle Classify tests a
// callee's fully-qualified path against, one group per ThreadControl
// kind.
// A nil *regexp.Regexp field means that group is unconfigured and never
// matches.
type ClassifyConfig struct {
	ScopeSpawn    *regexp.Regexp
	ScopeJoin     *regexp.Regexp
	ThreadSpawn   *regexp.Regexp
	ThreadJoin    *regexp.Regexp
	RayonJoin     *regexp.Regexp
	AsyncSpawn    *regexp.Regexp
	AsyncJoin     *regexp.Regexp
	CondvarWait   *regexp.Regexp
	CondvarNotify *regexp.Regexp
	ChannelSend   *regexp.Regexp
	ChannelRecv   *regexp.Regexp
}

// builtinRayonJoin and builtinTokioSpawn are always checked, ahead of
// any user configuration.
var (
	builtinRayonJoin  = regexp.MustCompile(`^rayon::join(::|$)`)
	builtinTokioSpawn = regexp.MustCompile(`^tokio::task::spawn(::|$)`)
	builtinTokioAwait = regexp.MustCompile(`JoinHandle.*::await$|::poll$`)
)

// attrThreadControl lists the recognized attribute names, in the order
// they are tried. Attribute
// classification wins over every path-based rule.
var attrThreadControl = []struct {
	attr string
	kind ThreadControl
}{
	{"pn_scope_spawn", ScopeSpawn},
	{"pn_scope_join", ScopeJoin},
	{"pn_spawn", Spawn},
	{"pn_join", Join},
	{"pn_rayon_join", RayonJoin},
	{"pn_async_spawn", AsyncSpawn},
	{"pn_async_join", AsyncJoin},
	{"pn_condvar_wait", CondvarWait},
	{"pn_condvar_notify", CondvarNotify},
	{"pn_channel_send", ChannelSend},
	{"pn_channel_recv", ChannelRecv},
}

// Classify determines which concurrency API, if any, a callee definition
// names: attribute check first, then the always-on
// rayon::join/tokio::task::spawn built-ins, then the
// user-configured regex bundle in group order. It returns NotThreadControl
// when nothing matches -- the call is an ordinary Direct edge.
func Classify(prog *ir.Program, def ir.DefID, cfg ClassifyConfig) ThreadControl {
	if def == "" {
		return NotThreadControl
	}
	for _, a := range attrThreadControl {
		if prog.HasAttribute(def, a.attr) {
			return a.kind
		}
	}

	path := prog.DefPathStr(def)
	if builtinRayonJoin.MatchString(path) {
		return RayonJoin
	}
	if builtinTokioSpawn.MatchString(path) {
		return AsyncSpawn
	}
	if builtinTokioAwait.MatchString(path) {
		return AsyncJoin
	}

	switch {
	case matches(cfg.ScopeSpawn, path):
		return ScopeSpawn
	case matches(cfg.ScopeJoin, path):
		return ScopeJoin
	case matches(cfg.ThreadSpawn, path):
		return Spawn
	case matches(cfg.ThreadJoin, path):
		return Join
	case matches(cfg.RayonJoin, path):
		return RayonJoin
	case matches(cfg.AsyncSpawn, path):
		return AsyncSpawn
	case matches(cfg.AsyncJoin, path):
		return AsyncJoin
	case matches(cfg.CondvarWait, path):
		return CondvarWait
	case matches(cfg.CondvarNotify, path):
		return CondvarNotify
	case matches(cfg.ChannelSend, path):
		return ChannelSend
	case matches(cfg.ChannelRecv, path):
		return ChannelRecv
	default:
		return NotThreadControl
	}
}

func matches(re *regexp.Regexp, path string) bool {
	return re != nil && re.MatchString(path)
}
