/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package explorer serves a running Checker's visited set over HTTP/JSON,
// plus a websocket stream of newly discovered fingerprints, so an
// external tool can walk the state space interactively. The checker
// only guarantees states are queryable by fingerprint while
// EnableServing is on; the wire schema here is this package's own
// concern.
package explorer

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/helofel/stateright/fingerprint"
)

// Served is the minimum surface an explorer needs from a running Checker.
// Adapt wraps a stateright.Checker[S] to satisfy this for any S; it is
// expressed as an interface here so the explorer
// itself need not be generic over S at the HTTP layer -- StateJSON and
// PathJSON already do the S-to-JSON conversion on the caller's side.
type Served interface {
	StateJSON(fp fingerprint.Fingerprint) (json.RawMessage, bool)
	PathJSON(fp fingerprint.Fingerprint) (json.RawMessage, bool)
}

// Server exposes GET /states/{fp}, GET /path/{fp}, and a /watch websocket
// that broadcasts every fingerprint as it is discovered.
type Server struct {
	checker  Served
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*websocket.Conn]struct{}
}

// New builds a Server around checker. Call Notify as new states are
// discovered to feed the /watch stream.
func New(checker Served) *Server {
	return &Server{
		checker:  checker,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		subs:     map[*websocket.Conn]struct{}{},
	}
}

// Handler returns the mux this server answers on.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/states/", s.handleState)
	mux.HandleFunc("/path/", s.handlePath)
	mux.HandleFunc("/watch", s.handleWatch)
	return mux
}

func parseFingerprint(path, prefix string) (fingerprint.Fingerprint, bool) {
	raw := path[len(prefix):]
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return fingerprint.Fingerprint(n), true
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	fp, ok := parseFingerprint(r.URL.Path, "/states/")
	if !ok {
		http.Error(w, "malformed fingerprint", http.StatusBadRequest)
		return
	}
	body, ok := s.checker.StateJSON(fp)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	fp, ok := parseFingerprint(r.URL.Path, "/path/")
	if !ok {
		http.Error(w, "malformed fingerprint", http.StatusBadRequest)
		return
	}
	body, ok := s.checker.PathJSON(fp)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.subs[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.subs, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	// The connection is write-only from the server's perspective; reading
	// here just detects the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Notify broadcasts fp to every connected /watch client. Slow or dead
// subscribers are dropped rather than allowed to block discovery.
func (s *Server) Notify(fp fingerprint.Fingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline := time.Now().Add(time.Second)
	for conn := range s.subs {
		_ = conn.SetWriteDeadline(deadline)
		if err := conn.WriteJSON(map[string]uint64{"fingerprint": uint64(fp)}); err != nil {
			conn.Close()
			delete(s.subs, conn)
		}
	}
}
