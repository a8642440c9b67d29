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

package session

import (
	"bufio"
	"net"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/mudcore/driver/object"
	"github.com/mudcore/driver/program"
)

func newPipeSession() (*Session, net.Conn) {
	client, server := net.Pipe()
	sess := &Session{
		ID:      "test-session",
		conn:    server,
		reader:  bufio.NewReader(server),
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	return sess, client
}

func waitForInbox(t *testing.T, s *Session, n int) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		s.mu.Lock()
		got := len(s.inbox)
		s.mu.Unlock()
		if got >= n {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d inbox lines, have %d", n, got)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestReadLoopStripsTelnetIACAndSplitsOnLF(t *testing.T) {
	sess, client := newPipeSession()
	go sess.readLoop()
	defer client.Close()

	// IAC WILL ECHO, then a line terminated with CRLF.
	client.Write([]byte{iac, will, 1})
	client.Write([]byte("look\r\n"))

	waitForInbox(t, sess, 1)
	sess.mu.Lock()
	line := sess.inbox[0]
	sess.mu.Unlock()
	if line != "look" {
		t.Fatalf("expected %q, got %q", "look", line)
	}
}

func TestReadLoopSkipsSubnegotiation(t *testing.T) {
	sess, client := newPipeSession()
	go sess.readLoop()
	defer client.Close()

	client.Write([]byte{iac, sb, 24, 0, iac, se})
	client.Write([]byte("term\n"))

	waitForInbox(t, sess, 1)
	sess.mu.Lock()
	line := sess.inbox[0]
	sess.mu.Unlock()
	if line != "term" {
		t.Fatalf("expected %q, got %q", "term", line)
	}
}

func TestReadLoopMarksClosedOnEOF(t *testing.T) {
	sess, client := newPipeSession()
	go sess.readLoop()
	client.Close()

	deadline := time.After(time.Second)
	for {
		sess.mu.Lock()
		closed := sess.closed
		sess.mu.Unlock()
		if closed {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for readLoop to mark the session closed")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestTellMirrorsToSnooper(t *testing.T) {
	sess, client := newPipeSession()
	defer client.Close()
	watcher, watcherClient := newPipeSession()
	defer watcherClient.Close()
	sess.snoopedBy = watcher

	sess.Tell("a message\n")

	sess.mu.Lock()
	got := sess.outbox.String()
	sess.mu.Unlock()
	if got != "a message\n" {
		t.Fatalf("expected the session's own outbox to have the text, got %q", got)
	}
	watcher.mu.Lock()
	gotWatcher := watcher.outbox.String()
	watcher.mu.Unlock()
	if gotWatcher != "a message\n" {
		t.Fatalf("expected the snooper's outbox to mirror the text, got %q", gotWatcher)
	}
}

func TestSnoopRejectsCycles(t *testing.T) {
	m := New(":0")
	a, ac := newPipeSession()
	b, bc := newPipeSession()
	defer ac.Close()
	defer bc.Close()

	if !m.Snoop(a, b) {
		t.Fatal("expected the first Snoop pairing to succeed")
	}
	if m.Snoop(b, a) {
		t.Fatal("expected a cyclic Snoop pairing to be rejected")
	}
	if m.Snoop(a, b) {
		t.Fatal("expected re-pairing an already-snooping watcher to be rejected")
	}
}

func TestUnsnoopBreaksPairing(t *testing.T) {
	m := New(":0")
	a, ac := newPipeSession()
	b, bc := newPipeSession()
	defer ac.Close()
	defer bc.Close()

	m.Snoop(a, b)
	m.Unsnoop(a)
	if b.snoopedBy != nil {
		t.Fatal("expected Unsnoop to clear the target's snoopedBy")
	}
	if !m.Snoop(a, b) {
		t.Fatal("expected Snoop to succeed again after Unsnoop")
	}
}

func TestGrantAndPumpCommandsEnforceFairnessInvariant(t *testing.T) {
	m := New(":0")
	sess, client := newPipeSession()
	defer client.Close()
	sess.Object = object.New("/std/player", program.New("/std/player"))
	sess.inbox = []string{"look", "inventory"}
	sess.cmdInBuf = true
	m.sessions[sess.ID] = sess

	m.GrantCommandTurns()
	var dispatched []string
	m.PumpCommands(func(_ *object.Object, line string) {
		dispatched = append(dispatched, line)
	})

	if len(dispatched) != 1 || dispatched[0] != "look" {
		t.Fatalf("expected exactly one command dispatched this pump, got %+v", dispatched)
	}
	sess.mu.Lock()
	hasCmdTurn, cmdInBuf := sess.hasCmdTurn, sess.cmdInBuf
	sess.mu.Unlock()
	if hasCmdTurn && cmdInBuf {
		t.Fatal("invariant violated: both HAS_CMD_TURN and CMD_IN_BUF are true after a pump")
	}
	if !cmdInBuf {
		t.Fatal("expected cmdInBuf to stay true since a second line is still queued")
	}
}

func TestFlushWritesBufferedOutput(t *testing.T) {
	m := New(":0")
	sess, client := newPipeSession()
	defer client.Close()
	sess.outbox.WriteString("hello\n")
	m.sessions[sess.ID] = sess

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := client.Read(buf)
		done <- buf[:n]
	}()

	m.Flush()
	select {
	case got := <-done:
		if string(got) != "hello\n" {
			t.Fatalf("expected %q on the wire, got %q", "hello\n", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Flush to write to the connection")
	}
}
