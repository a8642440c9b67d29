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

package log

import (
	"bytes"
	"strings"
	"testing"
)

func newBufLogger() (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	lg := &Logger{out: buf, lvl: LvlInfo}
	return lg, buf
}

func TestWriteFiltersBelowLevel(t *testing.T) {
	lg, buf := newBufLogger()
	lg.Debug("should be dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected Debug to be dropped at LvlInfo, got %q", buf.String())
	}
	lg.Info("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected Info to be written, got %q", buf.String())
	}
}

func TestWriteIncludesLevelTagAndKeyValues(t *testing.T) {
	lg, buf := newBufLogger()
	lg.Warn("session dropped", "id", "sess-1", "reason", "eof")
	out := buf.String()
	if !strings.Contains(out, "[WARN]") {
		t.Fatalf("expected a WARN level tag, got %q", out)
	}
	if !strings.Contains(out, "id=sess-1") || !strings.Contains(out, "reason=eof") {
		t.Fatalf("expected both key-value pairs rendered, got %q", out)
	}
}

func TestWriteMarksOddTrailingKeyAsMissing(t *testing.T) {
	lg, buf := newBufLogger()
	lg.Info("partial", "onlykey")
	if !strings.Contains(buf.String(), "onlykey=MISSING") {
		t.Fatalf("expected an unpaired trailing key marked MISSING, got %q", buf.String())
	}
}

func TestWithCarriesPersistentContext(t *testing.T) {
	lg, buf := newBufLogger()
	child := lg.With("session", "sess-1")
	child.Info("hello")
	if !strings.Contains(buf.String(), "session=sess-1") {
		t.Fatalf("expected the persistent context to appear, got %q", buf.String())
	}
}

func TestSetLevelRaisesVerbosity(t *testing.T) {
	lg, buf := newBufLogger()
	lg.SetLevel(LvlDebug)
	lg.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatalf("expected Debug output after SetLevel(LvlDebug), got %q", buf.String())
	}
}

func TestLvlString(t *testing.T) {
	cases := map[Lvl]string{
		LvlCrit: "CRIT", LvlError: "ERRO", LvlWarn: "WARN",
		LvlInfo: "INFO", LvlDebug: "DBUG", LvlTrace: "TRCE",
	}
	for lvl, want := range cases {
		if got := lvl.String(); got != want {
			t.Errorf("Lvl(%d).String() = %q, want %q", lvl, got, want)
		}
	}
}
