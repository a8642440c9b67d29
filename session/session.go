// Copyright 2024 The Mudcore Authors
// This file is part of Mudcore.
//
// Mudcore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Mudcore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Mudcore. If not, see <http://www.gnu.org/licenses/>.

// Package session implements interactive connections (§4.10): telnet-style
// input framing, input_to continuation handoff, command-turn fairness
// bookkeeping, output buffering, and snoop pairing. Socket I/O itself runs
// on per-listener goroutines; the Manager hands finished lines back to the
// single backend goroutine rather than blocking it on reads/writes.
package session

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mudcore/driver/log"
	"github.com/mudcore/driver/object"
	"github.com/mudcore/driver/value"
)

// Telnet option-negotiation bytes stripped from the input stream (§4.10
// "telnet IAC option-sequence stripping").
const (
	iac = 255
	will = 251
	wont = 252
	do   = 253
	dont = 254
	sb   = 250
	se   = 240
)

// inputTo records a continuation installed by SetInputTo (§4.10 "input_to
// continuation handoff"): its target, captured arguments and mode flags.
// Nothing in this package reads it back; input lines still reach verb
// dispatch through PumpCommands.
type inputTo struct {
	Target   string
	FuncPtr  *value.Value
	Captured []value.Value
	NoEcho   bool
	NoEsc    bool
	SingleChar bool
}

// Session is one interactive connection.
type Session struct {
	ID     string
	Object *object.Object
	conn   net.Conn
	reader *bufio.Reader
	limiter *rate.Limiter

	mu          sync.Mutex
	inbox       []string // complete lines read off the wire, awaiting processing
	outbox      strings.Builder
	pending     *inputTo
	hasCmdTurn  bool
	cmdInBuf    bool
	snoopedBy   *Session
	snooping    *Session
	closed      bool
}

// Tell queues text for output, flushed at end of iteration or on a
// writable fd (§4.10 "output ring buffer").
func (s *Session) Tell(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox.WriteString(text)
	if s.snoopedBy != nil {
		s.snoopedBy.outbox.WriteString(text)
	}
}

// SetInputTo stores a continuation on the session (§4.10), replacing any
// earlier one. It does not change how input is routed: ProcessInput and
// PumpCommands do not consult it.
func (s *Session) SetInputTo(target string, fp *value.Value, captured []value.Value, noecho, noesc, singleChar bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &inputTo{Target: target, FuncPtr: fp, Captured: captured, NoEcho: noecho, NoEsc: noesc, SingleChar: singleChar}
}

// Manager owns every live session and the listeners that accept new ones.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	newConns chan net.Conn

	listenAddr string

	// rateLimit bounds how fast a flooding connection can enqueue commands
	// (§4.10 ambient addition): exceeding it delays the next read rather
	// than dropping data.
	rateLimit rate.Limit
	rateBurst int
}

// New returns a Manager that will listen on addr once Serve runs.
func New(addr string) *Manager {
	return &Manager{
		sessions:   make(map[string]*Session),
		newConns:   make(chan net.Conn, 16),
		listenAddr: addr,
		rateLimit:  5,
		rateBurst:  10,
	}
}

// Serve accepts connections until ctx is cancelled. One goroutine per
// listener, one goroutine per connection reader — all isolated from the
// backend's single mutator goroutine via the inbox/outbox locks on Session
// (§5 "I/O isolation").
func (m *Manager) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.listenAddr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Warn("session: accept error", "err", err)
				continue
			}
		}
		sess := m.newSession(conn)
		go sess.readLoop()
	}
}

func (m *Manager) newSession(conn net.Conn) *Session {
	sess := &Session{
		ID:      uuid.NewString(),
		conn:    conn,
		reader:  bufio.NewReader(conn),
		limiter: rate.NewLimiter(m.rateLimit, m.rateBurst),
	}
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	return sess
}

// readLoop strips telnet IAC sequences, splits on LF, drops bare CR, and
// appends complete lines to the session's inbox (§4.10 "input framing").
// It never touches driver state directly — Pending/ProcessInput do that
// from the backend goroutine.
func (s *Session) readLoop() {
	var line []byte
	for {
		b, err := s.reader.ReadByte()
		if err != nil {
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			return
		}
		if b == iac {
			s.skipTelnetOption()
			continue
		}
		if b == '\r' {
			continue // bare CR dropped
		}
		if b == '\n' {
			if err := s.limiter.Wait(context.Background()); err != nil {
				return
			}
			s.mu.Lock()
			s.inbox = append(s.inbox, string(line))
			s.cmdInBuf = true
			s.mu.Unlock()
			line = line[:0]
			continue
		}
		line = append(line, b)
	}
}

// skipTelnetOption consumes the byte(s) following an IAC per the option
// class: WILL/WONT/DO/DONT take exactly one further byte; a subnegotiation
// (SB) reads until IAC SE.
func (s *Session) skipTelnetOption() {
	cmd, err := s.reader.ReadByte()
	if err != nil {
		return
	}
	switch cmd {
	case will, wont, do, dont:
		_, _ = s.reader.ReadByte()
	case sb:
		for {
			b, err := s.reader.ReadByte()
			if err != nil {
				return
			}
			if b != iac {
				continue
			}
			next, err := s.reader.ReadByte()
			if err != nil || next == se {
				return
			}
		}
	}
}

// Pending returns every session with at least one complete unread line.
func (m *Manager) Pending() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for _, s := range m.sessions {
		s.mu.Lock()
		has := len(s.inbox) > 0
		s.mu.Unlock()
		if has {
			out = append(out, s)
		}
	}
	return out
}

// ProcessInput is the backend's per-session input step. It consumes no
// line: every line stays queued in inbox for PumpCommands, and a
// continuation stored by SetInputTo is not consulted.
func (m *Manager) ProcessInput(sess *Session) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.inbox) == 0 {
		return nil
	}
	// Lines stay queued in inbox; PumpCommands pops them round-robin so
	// that command-turn fairness (§8 invariant 8) is enforced centrally
	// rather than per-session.
	return nil
}

// GrantCommandTurns sets HAS_CMD_TURN for every session with buffered input
// (§4.9 step 8).
func (m *Manager) GrantCommandTurns() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		s.mu.Lock()
		if s.cmdInBuf {
			s.hasCmdTurn = true
		}
		s.mu.Unlock()
	}
}

// PumpCommands consumes exactly one line from every session that currently
// HAS_CMD_TURN, round-robin, then clears both CMD_IN_BUF and HAS_CMD_TURN
// for any session whose buffer is now empty (§8 invariant 8: "After
// command-turn grant and pump, every session has HAS_CMD_TURN=false or
// CMD_IN_BUF=false"). dispatch receives the plain command line; a
// continuation stored by SetInputTo is not consulted.
func (m *Manager) PumpCommands(dispatch func(obj *object.Object, line string)) {
	m.mu.Lock()
	ready := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		ready = append(ready, s)
	}
	m.mu.Unlock()

	for _, s := range ready {
		s.mu.Lock()
		if !s.hasCmdTurn || len(s.inbox) == 0 {
			s.mu.Unlock()
			continue
		}
		line := s.inbox[0]
		s.inbox = s.inbox[1:]
		obj := s.Object
		s.hasCmdTurn = false
		s.cmdInBuf = len(s.inbox) > 0
		s.mu.Unlock()

		if obj != nil {
			dispatch(obj, line)
		}
	}
}

// Tell writes text to obj's session, if it has one (a no-op for headless
// objects — most of the object universe has no attached connection).
func (m *Manager) Tell(obj *object.Object, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Object == obj {
			s.Tell(text)
			return
		}
	}
}

// Flush writes every session's buffered output to its socket — called at
// the end of a backend iteration or whenever a writable fd is observed
// (§4.10 "output ring buffer flushed on writable-fd or end-of-iteration").
func (m *Manager) Flush() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		if s.outbox.Len() == 0 {
			s.mu.Unlock()
			continue
		}
		out := s.outbox.String()
		s.outbox.Reset()
		s.mu.Unlock()
		if _, err := s.conn.Write([]byte(out)); err != nil {
			log.Debug("session: write error", "session", s.ID, "err", err)
		}
	}
}

// Snoop pairs watcher onto target's output stream (§4.10 "snoop pairing,
// avoiding cycles"): a session already being snooped, or already snooping
// someone, cannot be paired again without first unsnooping.
func (m *Manager) Snoop(watcher, target *Session) bool {
	if watcher == target || watcher.snooping != nil || target.snoopedBy != nil {
		return false
	}
	for cur := target; cur != nil; cur = cur.snooping {
		if cur == watcher {
			return false // would create a cycle
		}
	}
	watcher.snooping = target
	target.snoopedBy = watcher
	return true
}

// Unsnoop breaks a Snoop pairing.
func (m *Manager) Unsnoop(watcher *Session) {
	if watcher.snooping != nil {
		watcher.snooping.snoopedBy = nil
		watcher.snooping = nil
	}
}

// CloseAll closes every live connection — part of orderly shutdown (§4.9).
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		_ = s.conn.Close()
	}
}

// Remove detaches a session (its connection has closed) from the manager.
func (m *Manager) Remove(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sess.ID)
}
