/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package server

import (
	"sort"
	"sync/atomic"

	"go.osspkg.com/netpipe/sockopt"
)

type counters struct {
	accepted  atomic.Uint64
	closed    atomic.Uint64
	rejected  atomic.Uint64
	failed    atomic.Uint64
	recovered atomic.Uint64
	bytesIn   atomic.Uint64
	bytesOut  atomic.Uint64
}

// Stats are cumulative over the server lifetime, Active is the current count.
type Stats struct {
	Accepted uint64 `json:"accepted"`
	Active   uint64 `json:"active"`
	Closed   uint64 `json:"closed"`
	Rejected uint64 `json:"rejected"`
	Failed   uint64 `json:"failed"`
	// Recovered counts stage errors after which the connection kept reading.
	Recovered uint64            `json:"recovered"`
	BytesIn   uint64            `json:"bytes_in"`
	BytesOut  uint64            `json:"bytes_out"`
	Counters  map[string]uint64 `json:"counters,omitempty"`
}

type Snapshot struct {
	Name        string         `json:"name"`
	Network     string         `json:"network"`
	Address     string         `json:"address"`
	State       string         `json:"state"`
	Options     map[string]any `json:"options,omitempty"`
	Pipeline    []string       `json:"pipeline"`
	Stats       Stats          `json:"stats"`
	Connections []ConnInfo     `json:"connections"`
}

func (s *Server) Stats() Stats {
	st := Stats{
		Accepted:  s.stats.accepted.Load(),
		Closed:    s.stats.closed.Load(),
		Rejected:  s.stats.rejected.Load(),
		Failed:    s.stats.failed.Load(),
		Recovered: s.stats.recovered.Load(),
		BytesIn:   s.stats.bytesIn.Load(),
		BytesOut:  s.stats.bytesOut.Load(),
	}
	if r := s.current(); r != nil {
		st.Active = uint64(r.count())
	}
	if len(s.extra) > 0 {
		st.Counters = make(map[string]uint64, len(s.extra))
		for name, c := range s.extra {
			st.Counters[name] = c.Load()
		}
	}
	return st
}

// Connections lists the open connections ordered by accept time.
func (s *Server) Connections() []ConnInfo {
	r := s.current()
	if r == nil {
		return []ConnInfo{}
	}

	list := r.snapshot()
	out := make([]ConnInfo, 0, len(list))
	for _, ch := range list {
		out = append(out, ch.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Since.Before(out[j].Since)
	})
	return out
}

func (s *Server) Snapshot() Snapshot {
	descs := s.builder.Descriptors()
	names := make([]string, 0, len(descs))
	for _, d := range descs {
		names = append(names, d.Name())
	}

	snap := Snapshot{
		Name:        s.conf.Name,
		Network:     s.conf.Network,
		Address:     s.conf.Address,
		State:       s.State().String(),
		Options:     s.optionsMap(),
		Pipeline:    names,
		Stats:       s.Stats(),
		Connections: s.Connections(),
	}
	if addr := s.Addr(); addr != nil {
		snap.Address = addr.String()
	}
	return snap
}

// optionsMap renders the parsed options, child scoped names carry the child prefix.
func (s *Server) optionsMap() map[string]any {
	out := s.opts.Listen.Map()
	for k, v := range s.opts.Child.Map() {
		out[sockopt.ChildPrefix+k] = v
	}
	return out
}
