/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package pipeline

import (
	"fmt"
)

// Descriptor declares one stage of the pipeline.
type Descriptor interface {
	Name() string
	// Shareable reports that one instance serves every connection.
	Shareable() bool
	// Provide returns the stage instance for a new connection.
	Provide() (any, error)
}

type validator interface {
	Validate() error
}

type sharedDescriptor struct {
	name    string
	handler any
}

// Shared declares a stage whose single instance is reused by all connections.
// The handler must be stateless or synchronize itself.
func Shared(name string, handler any) Descriptor {
	return &sharedDescriptor{name: name, handler: handler}
}

func (d *sharedDescriptor) Name() string          { return d.name }
func (d *sharedDescriptor) Shareable() bool       { return true }
func (d *sharedDescriptor) Provide() (any, error) { return d.handler, nil }

type connDescriptor[A, H any] struct {
	name    string
	args    A
	factory func(A) (H, error)
}

// PerConnection declares a stage built by factory(args) for every accepted connection.
// Args implementing Validate() error are checked when the builder is created.
func PerConnection[A, H any](name string, factory func(A) (H, error), args A) Descriptor {
	return &connDescriptor[A, H]{name: name, args: args, factory: factory}
}

// Factory is PerConnection for constructors without arguments.
func Factory[H any](name string, fn func() H) Descriptor {
	if fn == nil {
		return PerConnection[struct{}, H](name, nil, struct{}{})
	}
	return PerConnection(name, func(struct{}) (H, error) { return fn(), nil }, struct{}{})
}

func (d *connDescriptor[A, H]) Name() string    { return d.name }
func (d *connDescriptor[A, H]) Shareable() bool { return false }

func (d *connDescriptor[A, H]) Provide() (any, error) {
	if d.factory == nil {
		return nil, fmt.Errorf("factory is nil")
	}
	h, err := d.factory(d.args)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (d *connDescriptor[A, H]) validate() error {
	if d.factory == nil {
		return fmt.Errorf("factory is nil")
	}
	if v, ok := any(d.args).(validator); ok {
		return v.Validate()
	}
	if v, ok := any(&d.args).(validator); ok {
		return v.Validate()
	}
	return nil
}
