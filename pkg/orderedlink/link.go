/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package orderedlink wraps an inner actor.Actor so that it communicates
// over an exactly-once, in-order channel while the underlying network
// remains lossy and duplicating. Sequencers, acks, and a periodic
// retransmission timer recover ordered-reliable delivery on top of a
// network that may drop or duplicate any envelope.
package orderedlink

import (
	"github.com/pkg/errors"

	"github.com/helofel/stateright/pkg/actor"
)

// Seq is a strictly-increasing, 1-based sequencer assigned to every
// message the wrapper sends.
type Seq uint64

// wireKind discriminates the wrapper's two wire message variants. This is
// a closed, explicit discriminated union rather than an interface with
// dynamic dispatch.
type wireKind int

const (
	wireDeliver wireKind = iota
	wireAck
)

// Wire is the message type exchanged between two Wrapper instances. Only
// one of Inner (for wireDeliver) is meaningful for a given Kind; callers
// building a Wire by hand should use Deliver or Ack below.
type Wire[Msg any] struct {
	Kind  wireKind
	Seq   Seq
	Inner Msg
}

// Deliver builds a Deliver(seq, msg) wire message.
func Deliver[Msg any](seq Seq, msg Msg) Wire[Msg] {
	return Wire[Msg]{Kind: wireDeliver, Seq: seq, Inner: msg}
}

// Ack builds an Ack(seq) wire message.
func Ack[Msg any](seq Seq) Wire[Msg] {
	return Wire[Msg]{Kind: wireAck, Seq: seq}
}

func (w Wire[Msg]) IsDeliver() bool { return w.Kind == wireDeliver }
func (w Wire[Msg]) IsAck() bool     { return w.Kind == wireAck }

// ErrTimerNotOwned backs the panic raised when a wrapped actor's Out
// records a SetTimer/CancelTimer: the retransmission timer is the
// wrapper's alone and inner handlers may not touch it.
var ErrTimerNotOwned = errors.New("orderedlink: wrapped actor may not set or cancel timers; the retransmission timer belongs to the wrapper")

// State is the wrapper's own state: the inner actor's state plus all the
// exactly-once bookkeeping layered on top of it. It is itself the State
// type seen by pkg/system, so it must encode deterministically via gob
// like any other state.
type State[Msg any, Inner any] struct {
	WrappedState     Inner
	NextSendSeq      Seq
	MsgsPendingAck   []PendingSend[Msg]
	LastDeliveredSeq []DeliveredMark
}

// PendingSend records one sent-but-unacknowledged Deliver, kept sorted by
// Seq for deterministic gob encoding.
type PendingSend[Msg any] struct {
	Seq Seq
	Dst actor.Id
	Msg Msg
}

// DeliveredMark records the highest sequencer delivered to the inner
// actor from a given source, kept sorted by Src.
type DeliveredMark struct {
	Src actor.Id
	Seq Seq
}

// RetransmitTimer is the single timer id the wrapper arms; wrapped actors
// never see or control it.
const RetransmitTimer actor.TimerId = 0

// Wrapper lifts inner into an actor.Actor[Wire[Msg], State[Msg, Inner]].
// It owns the one retransmission timer and rejects any timer command
// coming from inner's Out.
type Wrapper[Msg any, Inner any] struct {
	Inner actor.Actor[Msg, Inner]
}

// New builds a Wrapper around inner.
func New[Msg any, Inner any](inner actor.Actor[Msg, Inner]) *Wrapper[Msg, Inner] {
	return &Wrapper[Msg, Inner]{Inner: inner}
}

func findDelivered(marks []DeliveredMark, src actor.Id) (Seq, int) {
	for i, m := range marks {
		if m.Src == src {
			return m.Seq, i
		}
	}
	return 0, -1
}

func setDelivered(marks []DeliveredMark, src actor.Id, seq Seq) []DeliveredMark {
	if _, idx := findDelivered(marks, src); idx >= 0 {
		marks[idx].Seq = seq
		return marks
	}
	out := make([]DeliveredMark, 0, len(marks)+1)
	inserted := false
	for _, m := range marks {
		if !inserted && m.Src > src {
			out = append(out, DeliveredMark{Src: src, Seq: seq})
			inserted = true
		}
		out = append(out, m)
	}
	if !inserted {
		out = append(out, DeliveredMark{Src: src, Seq: seq})
	}
	return out
}

// OnStart runs the inner actor's OnStart against a nested Out, then
// translates its effects (state, sends, timers) into the wrapper's own
// Out: every inner Send becomes a Deliver under a freshly assigned
// sequencer, and any inner timer command is rejected.
func (w *Wrapper[Msg, Inner]) OnStart(self actor.Id, out *actor.Out[Wire[Msg], State[Msg, Inner]]) {
	var inner actor.Out[Msg, Inner]
	w.Inner.OnStart(self, &inner)

	innerState, ok := inner.State()
	if !ok {
		panic("orderedlink: wrapped actor's OnStart did not call Out.SetState")
	}
	if len(inner.TimersSet()) > 0 || len(inner.TimersCanceled()) > 0 {
		panic(ErrTimerNotOwned.Error())
	}

	st := State[Msg, Inner]{WrappedState: innerState}
	st = w.sendAll(self, st, inner.Sent(), out)
	out.SetTimer(RetransmitTimer)
	out.SetState(st)
}

// sendAll assigns a fresh sequencer to each inner send, in order, and
// emits the corresponding Deliver, recording a pending-ack entry for
// each.
func (w *Wrapper[Msg, Inner]) sendAll(self actor.Id, st State[Msg, Inner], sent []actor.Envelope[Msg], out *actor.Out[Wire[Msg], State[Msg, Inner]]) State[Msg, Inner] {
	for _, e := range sent {
		st.NextSendSeq++
		seq := st.NextSendSeq
		out.Send(self, e.Dst, Deliver(seq, e.Msg))
		st.MsgsPendingAck = append(st.MsgsPendingAck, PendingSend[Msg]{Seq: seq, Dst: e.Dst, Msg: e.Msg})
	}
	return st
}

// OnMsg implements the receive path: always ack, drop duplicates without
// invoking inner, otherwise invoke inner and only advance the delivered
// watermark if inner's handling was not a no-op. Ack messages simply
// clear the matching pending-ack entry.
func (w *Wrapper[Msg, Inner]) OnMsg(self actor.Id, state State[Msg, Inner], src actor.Id, msg Wire[Msg], out *actor.Out[Wire[Msg], State[Msg, Inner]]) {
	switch msg.Kind {
	case wireAck:
		w.onAck(state, msg.Seq, out)
	case wireDeliver:
		w.onDeliver(self, state, src, msg.Seq, msg.Inner, out)
	}
}

func (w *Wrapper[Msg, Inner]) onAck(state State[Msg, Inner], seq Seq, out *actor.Out[Wire[Msg], State[Msg, Inner]]) {
	idx := -1
	for i, p := range state.MsgsPendingAck {
		if p.Seq == seq {
			idx = i
			break
		}
	}
	if idx < 0 {
		return // ack for an entry already retired: ignore
	}
	next := make([]PendingSend[Msg], 0, len(state.MsgsPendingAck)-1)
	next = append(next, state.MsgsPendingAck[:idx]...)
	next = append(next, state.MsgsPendingAck[idx+1:]...)
	state.MsgsPendingAck = next
	out.SetState(state)
}

func (w *Wrapper[Msg, Inner]) onDeliver(self actor.Id, state State[Msg, Inner], src actor.Id, seq Seq, inner Msg, out *actor.Out[Wire[Msg], State[Msg, Inner]]) {
	out.Send(self, src, Ack[Msg](seq))

	highest, _ := findDelivered(state.LastDeliveredSeq, src)
	if seq <= highest {
		// Already delivered; drop without invoking the inner actor, but the
		// ack above still goes out so the sender can retire it.
		return
	}

	var innerOut actor.Out[Msg, Inner]
	w.Inner.OnMsg(self, state.WrappedState, src, inner, &innerOut)
	if len(innerOut.TimersSet()) > 0 || len(innerOut.TimersCanceled()) > 0 {
		panic(ErrTimerNotOwned.Error())
	}

	if innerOut.IsNoOp() {
		// A no-op must not consume the delivery slot, so a later
		// retransmission of the same seq (or a genuinely new message this
		// one happened to shadow) still gets a chance to go through.
		return
	}

	newState := state
	newState.LastDeliveredSeq = setDelivered(append([]DeliveredMark{}, state.LastDeliveredSeq...), src, seq)
	if s, ok := innerOut.State(); ok {
		newState.WrappedState = s
	}
	newState.MsgsPendingAck = append([]PendingSend[Msg]{}, state.MsgsPendingAck...)
	newState = w.sendAll(self, newState, innerOut.Sent(), out)
	out.SetState(newState)
}

// OnTimeout fires the retransmission timer: it is rearmed and every
// still-pending send is resent verbatim, in Seq order.
func (w *Wrapper[Msg, Inner]) OnTimeout(self actor.Id, state State[Msg, Inner], timer actor.TimerId, out *actor.Out[Wire[Msg], State[Msg, Inner]]) {
	if timer != RetransmitTimer {
		return
	}
	out.SetTimer(RetransmitTimer)
	for _, p := range state.MsgsPendingAck {
		out.Send(self, p.Dst, Deliver(p.Seq, p.Msg))
	}
}
