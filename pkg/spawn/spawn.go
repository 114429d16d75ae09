/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package spawn runs a system's actors for real, each bound to its own
// UDP socket, instead of exploring their state space. It has no
// model-checking logic of its own: it just wires actor.Actor handlers
// to real sockets through a codec.Codec.
package spawn

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/helofel/stateright/pkg/actor"
	"github.com/helofel/stateright/pkg/codec"
	"github.com/helofel/stateright/pkg/logger"
)

// Peer names one actor's network address alongside its id. Addr must be
// resolvable by net.ResolveUDPAddr("udp", Addr).
type Peer struct {
	Id   actor.Id
	Addr string
}

// RetransmitPoll is how often a spawned actor's armed timers are checked
// for firing, in lieu of the checker's nondeterministic timeout
// modeling -- real time replaces the exploration of "timeout may fire at
// any point" once we are actually running the system.
const RetransmitPoll = 50 * time.Millisecond

// runner holds the live state for one spawned actor.
type runner[Msg any, State any] struct {
	self   actor.Id
	actor  actor.Actor[Msg, State]
	codec  codec.Codec[Msg]
	log    logger.Logger
	conn   *net.UDPConn
	addrOf map[actor.Id]*net.UDPAddr
	idOf   map[string]actor.Id

	mu     sync.Mutex
	state  State
	timers map[actor.TimerId]bool
}

// Run binds one UDP socket per peer and dispatches datagrams through
// codec into each actor's OnMsg, encoding Out commands back out through
// the same codec. It blocks until ctx is canceled. Codec errors and
// socket errors are logged and the offending operation dropped -- spawn
// never returns an error for a single bad packet.
func Run[Msg any, State any](ctx context.Context, peers []Peer, actors map[actor.Id]actor.Actor[Msg, State], c codec.Codec[Msg], log logger.Logger) error {
	if log == nil {
		log = logger.NopLogger{}
	}

	addrOf := make(map[actor.Id]*net.UDPAddr, len(peers))
	idOf := make(map[string]actor.Id, len(peers))
	for _, p := range peers {
		addr, err := net.ResolveUDPAddr("udp", p.Addr)
		if err != nil {
			return errors.Wrapf(err, "spawn: resolving address %q for actor %d", p.Addr, p.Id)
		}
		addrOf[p.Id] = addr
		idOf[addr.String()] = p.Id
	}

	var wg sync.WaitGroup
	for _, p := range peers {
		a, ok := actors[p.Id]
		if !ok {
			continue
		}
		laddr, err := net.ResolveUDPAddr("udp", p.Addr)
		if err != nil {
			return errors.Wrapf(err, "spawn: resolving listen address for actor %d", p.Id)
		}
		conn, err := net.ListenUDP("udp", laddr)
		if err != nil {
			return errors.Wrapf(err, "spawn: binding socket for actor %d", p.Id)
		}

		r := &runner[Msg, State]{
			self:   p.Id,
			actor:  a,
			codec:  c,
			log:    log,
			conn:   conn,
			addrOf: addrOf,
			idOf:   idOf,
			timers: map[actor.TimerId]bool{},
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(ctx)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (r *runner[Msg, State]) loop(ctx context.Context) {
	defer r.conn.Close()

	var out actor.Out[Msg, State]
	r.actor.OnStart(r.self, &out)
	s, ok := out.State()
	if !ok {
		r.log.Log(logger.LevelError, "actor OnStart did not call SetState; refusing to run", "actor", r.self)
		return
	}
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	r.apply(&out)

	go r.pollTimers(ctx)

	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = r.conn.SetReadDeadline(time.Now().Add(RetransmitPoll))
		n, raddr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue // read timeout or transient error: loop back and recheck ctx
		}

		src, ok := r.idOf[raddr.String()]
		if !ok {
			r.log.Log(logger.LevelWarn, "datagram from unknown peer dropped", "actor", r.self, "from", raddr.String())
			continue
		}
		msg, err := r.codec.Decode(append([]byte{}, buf[:n]...))
		if err != nil {
			r.log.Log(logger.LevelWarn, "codec decode failed; message dropped", "actor", r.self, "error", err.Error())
			continue
		}

		r.mu.Lock()
		state := r.state
		var handled actor.Out[Msg, State]
		r.actor.OnMsg(r.self, state, src, msg, &handled)
		if newState, ok := handled.State(); ok {
			r.state = newState
		}
		r.mu.Unlock()
		r.apply(&handled)
	}
}

// pollTimers fires OnTimeout for every armed timer roughly every
// RetransmitPoll, standing in for the checker's nondeterministic
// "a timeout may fire at any later step" once real wall-clock time, not
// exploration, governs scheduling.
func (r *runner[Msg, State]) pollTimers(ctx context.Context) {
	ticker := time.NewTicker(RetransmitPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		armed := make([]actor.TimerId, 0, len(r.timers))
		for id, on := range r.timers {
			if on {
				armed = append(armed, id)
			}
		}
		r.mu.Unlock()

		for _, id := range armed {
			r.mu.Lock()
			current := r.state
			var out actor.Out[Msg, State]
			r.actor.OnTimeout(r.self, current, id, &out)
			if newState, ok := out.State(); ok {
				r.state = newState
			}
			r.mu.Unlock()
			r.apply(&out)
		}
	}
}

// apply sends every queued envelope, fans each broadcast out to every
// configured peer but the sender, and updates the armed-timer set. It
// never fails loudly: a socket write error is logged and dropped.
func (r *runner[Msg, State]) apply(out *actor.Out[Msg, State]) {
	for _, e := range out.Sent() {
		r.send(e.Dst, e.Msg)
	}
	if broadcasts := out.Broadcasts(); len(broadcasts) > 0 {
		dsts := make([]actor.Id, 0, len(r.addrOf))
		for dst := range r.addrOf {
			if dst != r.self {
				dsts = append(dsts, dst)
			}
		}
		sort.Slice(dsts, func(i, j int) bool { return dsts[i] < dsts[j] })
		for _, msg := range broadcasts {
			for _, dst := range dsts {
				r.send(dst, msg)
			}
		}
	}

	r.mu.Lock()
	for _, id := range out.TimersSet() {
		r.timers[id] = true
	}
	for _, id := range out.TimersCanceled() {
		r.timers[id] = false
	}
	r.mu.Unlock()
}

// send encodes msg and writes it to dst's socket. An unknown destination,
// a codec failure, or a socket error is logged and the message dropped.
func (r *runner[Msg, State]) send(dst actor.Id, msg Msg) {
	addr, ok := r.addrOf[dst]
	if !ok {
		r.log.Log(logger.LevelWarn, "send to unknown peer dropped", "actor", r.self, "dst", dst)
		return
	}
	b, err := r.codec.Encode(msg)
	if err != nil {
		r.log.Log(logger.LevelWarn, "codec encode failed; message dropped", "actor", r.self, "error", err.Error())
		return
	}
	if _, err := r.conn.WriteToUDP(b, addr); err != nil {
		r.log.Log(logger.LevelWarn, "socket send failed; message dropped", "actor", r.self, "dst", dst, "error", err.Error())
	}
}
