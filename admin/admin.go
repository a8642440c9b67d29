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

// Package admin exposes a read-only HTTP introspection surface over the
// driver's live state: object census, heart-beat registrations, and
// call-out wheel occupancy — useful for an operator diagnosing a stuck mud
// without attaching a debugger to the single backend goroutine.
package admin

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/cors"

	"github.com/mudcore/driver/backend"
	"github.com/mudcore/driver/object"
)

// Server wraps the introspection HTTP surface.
type Server struct {
	loop *backend.Loop
	rt   *object.Runtime
}

// New builds a Server over loop/rt; neither field is mutated, only read.
func New(loop *backend.Loop, rt *object.Runtime) *Server {
	return &Server{loop: loop, rt: rt}
}

// Handler returns the CORS-wrapped httprouter mux for this surface.
func (s *Server) Handler() http.Handler {
	r := httprouter.New()
	r.GET("/status", s.status)
	r.GET("/objects", s.objects)
	r.GET("/heartbeats", s.heartbeats)
	r.GET("/calloutwheel", s.calloutWheel)
	return cors.AllowAll().Handler(r)
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	buf := &bytes.Buffer{}
	table := tablewriter.NewWriter(buf)
	table.SetHeader([]string{"metric", "value"})
	table.Append([]string{"objects", itoa(len(s.rt.Objects.AllObjects()))})
	table.Append([]string{"load_av", ftoa(s.loop.QueryLoadAv())})
	table.Render()
	w.Write(buf.Bytes())
}

func (s *Server) objects(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	buf := &bytes.Buffer{}
	table := tablewriter.NewWriter(buf)
	table.SetHeader([]string{"name", "destructed"})
	for _, raw := range s.rt.Objects.AllObjects() {
		o, ok := raw.(*object.Object)
		if !ok {
			continue
		}
		table.Append([]string{o.Name(), boolStr(o.Destructed())})
	}
	table.Render()
	w.Write(buf.Bytes())
}

func (s *Server) heartbeats(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	buf := &bytes.Buffer{}
	table := tablewriter.NewWriter(buf)
	table.SetHeader([]string{"active registrations"})
	table.Append([]string{itoa(s.loop.Hearts.Len())})
	table.Render()
	w.Write(buf.Bytes())
}

func (s *Server) calloutWheel(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	buf := &bytes.Buffer{}
	table := tablewriter.NewWriter(buf)
	table.SetHeader([]string{"pending call-outs"})
	table.Append([]string{itoa(s.loop.CallOuts.Len())})
	table.Render()
	w.Write(buf.Bytes())
}

func itoa(n int) string { return strconv.Itoa(n) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }

func boolStr(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
