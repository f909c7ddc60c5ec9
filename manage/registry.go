/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

// Package manage exposes running servers to operators: an explicit registry,
// a Prometheus collector and an HTTP api to inspect, start and stop them.
package manage

import (
	"sort"
	"sync"

	"go.osspkg.com/errors"
	"go.osspkg.com/logx"

	"go.osspkg.com/netpipe/server"
)

var (
	ErrDuplicate = errors.New("server already registered")
	ErrNotFound  = errors.New("server not found")
)

// Registry is handed to server.New through server.WithRegistrar.
type Registry struct {
	mux     sync.RWMutex
	servers map[string]*server.Server
}

func NewRegistry() *Registry {
	return &Registry{servers: make(map[string]*server.Server)}
}

func (r *Registry) Register(name string, s *server.Server) error {
	r.mux.Lock()
	defer r.mux.Unlock()

	if _, ok := r.servers[name]; ok {
		return errors.Wrapf(ErrDuplicate, "%s", name)
	}
	r.servers[name] = s
	logx.Debug("Manage: server registered", "name", name)
	return nil
}

func (r *Registry) Unregister(name string) {
	r.mux.Lock()
	defer r.mux.Unlock()

	delete(r.servers, name)
}

func (r *Registry) Get(name string) (*server.Server, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()

	s, ok := r.servers[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", name)
	}
	return s, nil
}

// List returns the registered servers sorted by name.
func (r *Registry) List() []*server.Server {
	r.mux.RLock()
	out := make([]*server.Server, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, s)
	}
	r.mux.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Name() < out[j].Name()
	})
	return out
}
