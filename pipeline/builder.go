/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package pipeline

import (
	"fmt"

	"go.osspkg.com/logx"

	"go.osspkg.com/netpipe/errs"
)

type (
	Builder struct {
		descs []Descriptor
	}

	BuildOption func(p *Pipeline)
)

// WithTail sets the receiver of messages leaving the last inbound stage.
func WithTail(fn TailFunc) BuildOption {
	return func(p *Pipeline) {
		if fn != nil {
			p.tail = fn
		}
	}
}

// NewBuilder validates every descriptor up front: names, shared instances,
// factory arguments and a probe construction of each per-connection stage.
func NewBuilder(descs ...Descriptor) (*Builder, error) {
	names := make(map[string]struct{}, len(descs))

	for i, d := range descs {
		if d == nil {
			return nil, errs.Configuration(fmt.Sprintf("pipeline[%d]", i), "descriptor is nil")
		}

		field := fmt.Sprintf("pipeline[%d].%s", i, d.Name())

		if len(d.Name()) == 0 {
			return nil, errs.Configuration(field, "name is empty")
		}
		if _, ok := names[d.Name()]; ok {
			return nil, errs.Configuration(field, "duplicate name")
		}
		names[d.Name()] = struct{}{}

		if v, ok := d.(interface{ validate() error }); ok {
			if err := v.validate(); err != nil {
				return nil, &errs.ConfigurationError{Field: field, Reason: "invalid arguments", Err: err}
			}
		}

		h, err := d.Provide()
		if err != nil {
			return nil, &errs.ConfigurationError{Field: field, Reason: "construct stage", Err: err}
		}
		if h == nil {
			return nil, errs.Configuration(field, "stage is nil")
		}
		if !isHandler(h) {
			return nil, errs.Configuration(field, "%T does not implement any handler interface", h)
		}
	}

	return &Builder{descs: append(make([]Descriptor, 0, len(descs)), descs...)}, nil
}

func (b *Builder) Descriptors() []Descriptor {
	return append(make([]Descriptor, 0, len(b.descs)), b.descs...)
}

// Build materializes the stages for one connection in declared order.
func (b *Builder) Build(t Transport, opts ...BuildOption) (*Pipeline, error) {
	p := &Pipeline{
		t:      t,
		stages: make([]*stage, 0, len(b.descs)),
		tail:   dropTail,
	}

	for i, d := range b.descs {
		h, err := d.Provide()
		if err != nil {
			return nil, fmt.Errorf("build stage %s: %w", d.Name(), err)
		}
		if h == nil || !isHandler(h) {
			return nil, fmt.Errorf("build stage %s: invalid handler %T", d.Name(), h)
		}
		p.stages = append(p.stages, newStage(p, i, d.Name(), h))
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

func dropTail(ch Channel, msg any) error {
	logx.Debug("Pipeline: unhandled inbound message", "id", ch.ID(), "type", fmt.Sprintf("%T", msg))
	return nil
}
