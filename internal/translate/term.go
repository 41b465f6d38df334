// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package translate

import (
	"fmt"

	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/petri"
)

// translateTerm dispatches on the terminator kind. Call terminators are
// handled separately in call.go; everything else produces one transition
// consuming from the BB's last-place.
func (tr *translator) translateTerm(instIdx, bi int, bb ir.BasicBlock, last int) {
	term := bb.Term
	switch term.Kind {
	case ir.TermGoto:
		tr.simpleTransition(instIdx, bi, last, term.Target, petri.LGoto, term.Span)
	case ir.TermSwitchInt:
		for _, target := range term.SwitchTargets {
			tr.simpleTransition(instIdx, bi, last, target, petri.LSwitch, term.Span)
		}
	case ir.TermAssert:
		tr.simpleTransition(instIdx, bi, last, term.Target, petri.LAssert, term.Span)
	case ir.TermReturn:
		tr.returnTransition(instIdx, last)
	case ir.TermDrop:
		tr.translateDrop(instIdx, bi, last, term)
	case ir.TermCall:
		tr.translateCall(instIdx, bi, last, term)
	case ir.TermUnreachable, ir.TermUnwindResume, ir.TermUnwindTerminate, ir.TermCoroutineDrop, ir.TermTailCall:
		tr.returnTransition(instIdx, last)
	case ir.TermInlineAsm:
		if term.HasTarget {
			tr.simpleTransition(instIdx, bi, last, term.Target, petri.LGoto, term.Span)
		} else {
			tr.returnTransition(instIdx, last)
		}
	case ir.TermFalseEdge, ir.TermFalseUnwind, ir.TermYield:
		tr.simpleTransition(instIdx, bi, last, term.Target, petri.LGoto, term.Span)
	}
}

func (tr *translator) simpleTransition(instIdx, bi, src, targetBB int, kind petri.LabelKind, span ir.Span) {
	sk := tr.skel[instIdx]
	t := tr.net.AddTransition(fmt.Sprintf("i%d::bb%d::%s", instIdx, bi, kind), petri.TransitionLabel{Kind: kind, TID: instIdx, Resource: -1, Span: span})
	tr.net.AddInputArc(src, t, 1)
	tr.net.AddOutputArc(sk.bbHead[targetBB], t, 1)
}

// translateDrop handles a Drop terminator: an ordinary Drop-typed
// transition, plus -- when the dropped local names a lock-guard -- the
// lock-release arc and Unlock(r) relabeling.
func (tr *translator) translateDrop(instIdx, bi, src int, term ir.Terminator) {
	t := tr.net.AddTransition(fmt.Sprintf("i%d::bb%d::Drop", instIdx, bi), petri.TransitionLabel{Kind: petri.LDrop, TID: instIdx, Resource: -1, Span: term.Span})
	tr.net.AddInputArc(src, t, 1)

	id := ir.AliasID{Instance: instIdx, Local: term.DropPlace.Local}
	if regIdx, ok := tr.reg.ResourceForLock(id); ok {
		weight := 1
		if g, ok := findGuard(tr.reg, regIdx, id); ok {
			weight, _ = lockWiring(g.Kind)
		}
		tr.net.AddOutputArc(tr.resPlace[regIdx], t, weight)
		tr.net.RelabelTransition(t, petri.TransitionLabel{Kind: petri.LUnlock, TID: instIdx, Resource: regIdx, Span: term.Span})
	}

	if term.HasTarget {
		tr.net.AddOutputArc(tr.skel[instIdx].bbHead[term.Target], t, 1)
	} else {
		// A Drop with no live target exits the function: route through a
		// fresh place into the shared Return transition (t itself cannot
		// feed the place-typed Return input directly).
		fresh := tr.freshPlace(instIdx, term.Span)
		tr.net.AddOutputArc(fresh, t, 1)
		tr.returnTransition(instIdx, fresh)
	}
}
