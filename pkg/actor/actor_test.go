/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package actor

import "testing"

func TestOutIsNoOpInitially(t *testing.T) {
	var out Out[string, int]
	if !out.IsNoOp() {
		t.Fatalf("expected a freshly constructed Out to be a no-op")
	}
}

func TestOutSetStateMarksNotNoOp(t *testing.T) {
	var out Out[string, int]
	out.SetState(5)
	if out.IsNoOp() {
		t.Fatalf("expected Out to not be a no-op after SetState")
	}
	s, ok := out.State()
	if !ok || s != 5 {
		t.Fatalf("expected State() to return (5, true), got (%d, %v)", s, ok)
	}
}

func TestOutSendMarksNotNoOp(t *testing.T) {
	var out Out[string, int]
	out.Send(0, 1, "hello")
	if out.IsNoOp() {
		t.Fatalf("expected Out to not be a no-op after Send")
	}
	sent := out.Sent()
	if len(sent) != 1 || sent[0].Src != 0 || sent[0].Dst != 1 || sent[0].Msg != "hello" {
		t.Fatalf("unexpected Sent(): %+v", sent)
	}
}

func TestOutBroadcastRecordsOneEntryPerCall(t *testing.T) {
	var out Out[string, int]
	out.Broadcast("all")
	if out.IsNoOp() {
		t.Fatalf("expected Out to not be a no-op after Broadcast")
	}
	if got := out.Broadcasts(); len(got) != 1 || got[0] != "all" {
		t.Fatalf("unexpected Broadcasts(): %+v", got)
	}
}

func TestOutTimerCommandsRoundTrip(t *testing.T) {
	var out Out[string, int]
	out.SetTimer(7)
	out.CancelTimer(9)
	if out.IsNoOp() {
		t.Fatalf("expected Out to not be a no-op after timer commands")
	}
	if got := out.TimersSet(); len(got) != 1 || got[0] != 7 {
		t.Fatalf("unexpected TimersSet(): %+v", got)
	}
	if got := out.TimersCanceled(); len(got) != 1 || got[0] != 9 {
		t.Fatalf("unexpected TimersCanceled(): %+v", got)
	}
}

func TestOutStateUnsetReturnsZeroValue(t *testing.T) {
	var out Out[string, int]
	s, ok := out.State()
	if ok {
		t.Fatalf("expected State() to report ok=false when SetState was never called")
	}
	if s != 0 {
		t.Fatalf("expected zero value when unset, got %d", s)
	}
}

func TestEnvelopeString(t *testing.T) {
	e := Envelope[int]{Src: 1, Dst: 2, Msg: 42}
	if got := e.String(); got == "" {
		t.Fatalf("expected a non-empty String()")
	}
}
