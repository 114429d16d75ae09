/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package orderedlink

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/helofel/stateright/pkg/actor"
)

// burstActor sends two messages at start and one further message for
// every delivery it accepts, giving the wrapper a stream of sends to
// sequence.
type burstActor struct {
	dst actor.Id
}

func (b burstActor) OnStart(self actor.Id, out *actor.Out[int, int]) {
	out.SetState(0)
	out.Send(self, b.dst, 10)
	out.Send(self, b.dst, 11)
}

func (b burstActor) OnMsg(self actor.Id, state int, src actor.Id, msg int, out *actor.Out[int, int]) {
	out.SetState(state + 1)
	out.Send(self, b.dst, 12)
}

func (burstActor) OnTimeout(self actor.Id, state int, timer actor.TimerId, out *actor.Out[int, int]) {
}

// TestSendPathSequencing states the send-path contract in one place: the
// wrapper assigns strictly increasing 1-based sequencers across handler
// invocations, transmits each inner send as a Deliver under its
// sequencer, and keeps a pending entry per sequencer until acked.
func TestSendPathSequencing(t *testing.T) {
	Convey("Given a wrapper around an actor that bursts two sends at start", t, func() {
		w := New[int, int](burstActor{dst: 1})

		var startOut actor.Out[Wire[int], State[int, int]]
		w.OnStart(0, &startOut)
		state, ok := startOut.State()

		Convey("the start burst is sequenced 1, 2 in send order", func() {
			So(ok, ShouldBeTrue)
			So(state.NextSendSeq, ShouldEqual, Seq(2))

			sent := startOut.Sent()
			So(len(sent), ShouldEqual, 2)
			So(sent[0].Msg.IsDeliver(), ShouldBeTrue)
			So(sent[0].Msg.Seq, ShouldEqual, Seq(1))
			So(sent[0].Msg.Inner, ShouldEqual, 10)
			So(sent[1].Msg.Seq, ShouldEqual, Seq(2))
			So(sent[1].Msg.Inner, ShouldEqual, 11)

			So(len(state.MsgsPendingAck), ShouldEqual, 2)
			So(state.MsgsPendingAck[0].Seq, ShouldEqual, Seq(1))
			So(state.MsgsPendingAck[1].Seq, ShouldEqual, Seq(2))
		})

		Convey("When a delivery triggers a further inner send", func() {
			var out actor.Out[Wire[int], State[int, int]]
			w.OnMsg(0, state, 1, Deliver[int](1, 99), &out)
			next, changed := out.State()

			Convey("the new send continues the sequence rather than restarting it", func() {
				So(changed, ShouldBeTrue)
				So(next.NextSendSeq, ShouldEqual, Seq(3))

				var delivers []Wire[int]
				for _, e := range out.Sent() {
					if e.Msg.IsDeliver() {
						delivers = append(delivers, e.Msg)
					}
				}
				So(len(delivers), ShouldEqual, 1)
				So(delivers[0].Seq, ShouldEqual, Seq(3))
				So(delivers[0].Inner, ShouldEqual, 12)

				So(len(next.MsgsPendingAck), ShouldEqual, 3)
				So(next.MsgsPendingAck[2].Seq, ShouldEqual, Seq(3))
			})

			Convey("and an ack retires exactly its own sequencer", func() {
				var ackOut actor.Out[Wire[int], State[int, int]]
				w.OnMsg(0, next, 1, Ack[int](2), &ackOut)
				acked, ok := ackOut.State()

				So(ok, ShouldBeTrue)
				So(acked.NextSendSeq, ShouldEqual, Seq(3))
				So(len(acked.MsgsPendingAck), ShouldEqual, 2)
				So(acked.MsgsPendingAck[0].Seq, ShouldEqual, Seq(1))
				So(acked.MsgsPendingAck[1].Seq, ShouldEqual, Seq(3))
			})
		})
	})
}
