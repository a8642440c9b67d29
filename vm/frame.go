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

package vm

import (
	"github.com/mudcore/driver/program"
)

// FrameKind discriminates a control-stack frame's payload (§3.5).
type FrameKind uint8

const (
	FrameFunction FrameKind = iota
	FrameFuncPtr
	FrameFake
	FrameCatch
)

// frame is one control-stack entry (§3.5): it records everything needed to
// resume the caller on return, plus (for FrameCatch) the saved state a
// throw restores instead.
type frame struct {
	kind FrameKind

	prevProgram *program.Program
	prevPC      uint32
	prevFP      int // frame pointer into the value stack

	// catch-only fields
	catchSavedSP   int
	catchSavedFP   int
	catchJournalAt int
	catchEndPC     uint32
}
