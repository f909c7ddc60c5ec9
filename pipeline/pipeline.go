/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package pipeline

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.osspkg.com/errors"
)

var (
	ErrUnencoded = errors.New("message reached the socket unencoded")
	// ErrRecoverable matches stage errors after which the connection stays usable.
	ErrRecoverable = errors.New("recoverable stage error")
)

type recoverableError struct {
	err error
}

func (e *recoverableError) Error() string        { return e.err.Error() }
func (e *recoverableError) Unwrap() error        { return e.err }
func (e *recoverableError) Is(target error) bool { return target == ErrRecoverable }

// Recoverable marks err so the connection loop logs it and keeps reading. Nil stays nil.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return &recoverableError{err: err}
}

func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// StageError marks the stage a failure started in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func stageError(name string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*StageError); ok {
		return err
	}
	return &StageError{Stage: name, Err: err}
}

type (
	// Pipeline is the chain of stage instances of one connection.
	Pipeline struct {
		t      Transport
		stages []*stage
		tail   TailFunc
		rmux   sync.Mutex
		wmux   sync.Mutex
	}

	stage struct {
		name   string
		h      any
		in     InboundHandler
		out    OutboundHandler
		inCtx  *stageContext
		outCtx *stageContext
	}
)

func newStage(p *Pipeline, idx int, name string, h any) *stage {
	s := &stage{name: name, h: h}
	s.in, _ = h.(InboundHandler)
	s.out, _ = h.(OutboundHandler)
	s.inCtx = &stageContext{p: p, idx: idx, name: name}
	s.outCtx = &stageContext{p: p, idx: idx, name: name, locked: true}
	return s
}

func (p *Pipeline) Names() []string {
	out := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		out = append(out, s.name)
	}
	return out
}

func (p *Pipeline) Handlers() []any {
	out := make([]any, 0, len(p.stages))
	for _, s := range p.stages {
		out = append(out, s.h)
	}
	return out
}

func (p *Pipeline) ID() string               { return p.t.ID() }
func (p *Pipeline) LocalAddr() net.Addr      { return p.t.LocalAddr() }
func (p *Pipeline) RemoteAddr() net.Addr     { return p.t.RemoteAddr() }
func (p *Pipeline) Context() context.Context { return p.t.Context() }
func (p *Pipeline) Close() error             { return p.t.Close() }

// FireActive notifies stages in declared order that the connection is attached.
func (p *Pipeline) FireActive() error {
	for _, s := range p.stages {
		if h, ok := s.h.(ActiveHandler); ok {
			if err := h.HandleActive(s.inCtx); err != nil {
				return stageError(s.name, err)
			}
		}
	}
	return nil
}

// FireInactive notifies stages in declared order that the connection is gone, err is the close cause.
func (p *Pipeline) FireInactive(err error) {
	for _, s := range p.stages {
		if h, ok := s.h.(InactiveHandler); ok {
			h.HandleInactive(s.inCtx, err)
		}
	}
}

// FireRead pushes a message into the first inbound stage.
func (p *Pipeline) FireRead(msg any) error {
	p.rmux.Lock()
	defer p.rmux.Unlock()

	return p.inbound(0, msg)
}

// Write pushes a message through all outbound stages, last declared first.
func (p *Pipeline) Write(msg any) error {
	p.wmux.Lock()
	defer p.wmux.Unlock()

	return p.outbound(len(p.stages)-1, msg)
}

func (p *Pipeline) inbound(from int, msg any) error {
	for i := from; i < len(p.stages); i++ {
		if s := p.stages[i]; s.in != nil {
			return stageError(s.name, s.in.HandleRead(s.inCtx, msg))
		}
	}
	return p.tail(p, msg)
}

func (p *Pipeline) outbound(from int, msg any) error {
	for i := from; i >= 0; i-- {
		if s := p.stages[i]; s.out != nil {
			return stageError(s.name, s.out.HandleWrite(s.outCtx, msg))
		}
	}
	return p.flush(msg)
}

func (p *Pipeline) flush(msg any) error {
	var b []byte
	switch v := msg.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.Wrapf(ErrUnencoded, "type %T", msg)
	}
	_, err := p.t.Write(b)
	return err
}

type stageContext struct {
	p      *Pipeline
	idx    int
	name   string
	locked bool
}

func (c *stageContext) Name() string { return c.name }
func (c *stageContext) Channel() Channel {
	if c.locked {
		return outboundChannel{c.p}
	}
	return c.p
}
func (c *stageContext) Close() error { return c.p.Close() }

func (c *stageContext) FireRead(msg any) error {
	return c.p.inbound(c.idx+1, msg)
}

func (c *stageContext) Write(msg any) error {
	if c.locked {
		return c.p.outbound(c.idx-1, msg)
	}

	c.p.wmux.Lock()
	defer c.p.wmux.Unlock()

	return c.p.outbound(c.idx-1, msg)
}

// outboundChannel is the channel seen by outbound stages, the caller already holds the write lock.
type outboundChannel struct {
	*Pipeline
}

func (c outboundChannel) Write(msg any) error {
	return c.outbound(len(c.stages)-1, msg)
}
