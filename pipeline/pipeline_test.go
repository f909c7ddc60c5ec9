/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package pipeline_test

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"go.osspkg.com/casecheck"
	"go.osspkg.com/errors"

	"go.osspkg.com/netpipe/errs"
	"go.osspkg.com/netpipe/pipeline"
)

type mockTransport struct {
	mux    sync.Mutex
	id     string
	out    strings.Builder
	closed bool
}

func (m *mockTransport) ID() string               { return m.id }
func (m *mockTransport) LocalAddr() net.Addr      { return &net.TCPAddr{} }
func (m *mockTransport) RemoteAddr() net.Addr     { return &net.TCPAddr{} }
func (m *mockTransport) Context() context.Context { return context.TODO() }
func (m *mockTransport) Close() error             { m.closed = true; return nil }
func (m *mockTransport) String() string           { m.mux.Lock(); defer m.mux.Unlock(); return m.out.String() }
func (m *mockTransport) Write(b []byte) (int, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.out.Write(b)
}

type journal struct {
	mux  sync.Mutex
	list []string
}

func (j *journal) add(v string) {
	j.mux.Lock()
	defer j.mux.Unlock()
	j.list = append(j.list, v)
}

// tracer marks inbound strings with "<name" and outbound strings with ">name".
type tracer struct {
	name string
	j    *journal
}

func (v *tracer) HandleRead(ctx pipeline.Context, msg any) error {
	v.j.add("in:" + v.name)
	return ctx.FireRead(msg.(string) + "<" + v.name)
}

func (v *tracer) HandleWrite(ctx pipeline.Context, msg any) error {
	v.j.add("out:" + v.name)
	return ctx.Write(msg.(string) + ">" + v.name)
}

type echo struct{}

func (echo) HandleRead(ctx pipeline.Context, msg any) error {
	return ctx.Write(msg)
}

func TestUnit_PipelineOrder(t *testing.T) {
	j := &journal{}
	b, err := pipeline.NewBuilder(
		pipeline.Shared("a", &tracer{name: "a", j: j}),
		pipeline.Factory("b", func() *tracer { return &tracer{name: "b", j: j} }),
		pipeline.Shared("c", &tracer{name: "c", j: j}),
		pipeline.Shared("echo", echo{}),
	)
	casecheck.NoError(t, err)

	tr := &mockTransport{id: "1"}
	p, err := b.Build(tr)
	casecheck.NoError(t, err)
	casecheck.Equal(t, []string{"a", "b", "c", "echo"}, p.Names())

	casecheck.NoError(t, p.FireRead("x"))
	casecheck.Equal(t, "x<a<b<c>c>b>a", tr.String())
	casecheck.Equal(t, []string{"in:a", "in:b", "in:c", "out:c", "out:b", "out:a"}, j.list)
}

func TestUnit_PipelineWriteFromChannel(t *testing.T) {
	j := &journal{}
	b, err := pipeline.NewBuilder(
		pipeline.Shared("a", &tracer{name: "a", j: j}),
		pipeline.Shared("b", &tracer{name: "b", j: j}),
	)
	casecheck.NoError(t, err)

	tr := &mockTransport{}
	p, err := b.Build(tr)
	casecheck.NoError(t, err)

	casecheck.NoError(t, p.Write("m"))
	casecheck.Equal(t, "m>b>a", tr.String())
}

func TestUnit_PipelineSharedAndPerConnection(t *testing.T) {
	const conns = 4

	shared := &tracer{name: "shared", j: &journal{}}
	b, err := pipeline.NewBuilder(
		pipeline.Shared("shared", shared),
		pipeline.Factory("own", func() *tracer { return &tracer{name: "own", j: &journal{}} }),
	)
	casecheck.NoError(t, err)

	seen := make(map[any]struct{})
	var wg sync.WaitGroup
	var mux sync.Mutex
	for i := 0; i < conns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, e := b.Build(&mockTransport{id: fmt.Sprint(i)})
			if e != nil {
				t.Error(e)
				return
			}
			h := p.Handlers()
			mux.Lock()
			defer mux.Unlock()
			if h[0] != shared {
				t.Errorf("shared stage was not reused")
			}
			seen[h[1]] = struct{}{}
		}(i)
	}
	wg.Wait()

	casecheck.Equal(t, conns, len(seen))
}

func TestUnit_PipelinePassThrough(t *testing.T) {
	b, err := pipeline.NewBuilder()
	casecheck.NoError(t, err)

	var got []any
	tr := &mockTransport{}
	p, err := b.Build(tr, pipeline.WithTail(func(ch pipeline.Channel, msg any) error {
		got = append(got, msg)
		return ch.Write(msg)
	}))
	casecheck.NoError(t, err)

	casecheck.NoError(t, p.FireRead([]byte("raw")))
	casecheck.Equal(t, []any{[]byte("raw")}, got)
	casecheck.Equal(t, "raw", tr.String())
}

func TestUnit_PipelineUnencoded(t *testing.T) {
	b, err := pipeline.NewBuilder(pipeline.Shared("echo", echo{}))
	casecheck.NoError(t, err)

	p, err := b.Build(&mockTransport{})
	casecheck.NoError(t, err)

	err = p.FireRead(42)
	casecheck.Error(t, err)
	casecheck.True(t, errors.Is(err, pipeline.ErrUnencoded))

	se, ok := err.(*pipeline.StageError)
	casecheck.True(t, ok)
	casecheck.Equal(t, "echo", se.Stage)
}

type lifecycle struct {
	active   int
	inactive error
}

func (v *lifecycle) HandleActive(pipeline.Context) error          { v.active++; return nil }
func (v *lifecycle) HandleInactive(_ pipeline.Context, err error) { v.inactive = err }

func TestUnit_PipelineLifecycle(t *testing.T) {
	l := &lifecycle{}
	b, err := pipeline.NewBuilder(pipeline.Shared("l", l))
	casecheck.NoError(t, err)

	p, err := b.Build(&mockTransport{})
	casecheck.NoError(t, err)

	casecheck.NoError(t, p.FireActive())
	p.FireInactive(fmt.Errorf("bye"))

	casecheck.Equal(t, 1, l.active)
	casecheck.Equal(t, "bye", l.inactive.Error())
}

type frameArgs struct {
	Size int
}

func (a frameArgs) Validate() error {
	if a.Size < 0 {
		return fmt.Errorf("negative size")
	}
	return nil
}

func newSized(a frameArgs) (*tracer, error) {
	return &tracer{name: fmt.Sprint(a.Size), j: &journal{}}, nil
}

func TestUnit_BuilderValidation(t *testing.T) {
	tests := []struct {
		name  string
		descs []pipeline.Descriptor
	}{
		{name: "nil descriptor", descs: []pipeline.Descriptor{nil}},
		{name: "empty name", descs: []pipeline.Descriptor{pipeline.Shared("", echo{})}},
		{name: "duplicate", descs: []pipeline.Descriptor{pipeline.Shared("a", echo{}), pipeline.Shared("a", echo{})}},
		{name: "nil shared", descs: []pipeline.Descriptor{pipeline.Shared("a", nil)}},
		{name: "not a handler", descs: []pipeline.Descriptor{pipeline.Shared("a", "text")}},
		{name: "nil factory", descs: []pipeline.Descriptor{pipeline.Factory[*tracer]("a", nil)}},
		{name: "bad args", descs: []pipeline.Descriptor{pipeline.PerConnection("a", newSized, frameArgs{Size: -1})}},
		{name: "factory fails", descs: []pipeline.Descriptor{pipeline.PerConnection("a",
			func(int) (*tracer, error) { return nil, fmt.Errorf("boom") }, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipeline.NewBuilder(tt.descs...)
			casecheck.Error(t, err)
			casecheck.True(t, errors.Is(err, errs.ErrConfiguration), err)
		})
	}

	_, err := pipeline.NewBuilder(pipeline.PerConnection("a", newSized, frameArgs{Size: 3}))
	casecheck.NoError(t, err)
}

// notifier answers an outbound "ping" with an extra "pong" sent through the channel.
type notifier struct{}

func (notifier) HandleWrite(ctx pipeline.Context, msg any) error {
	if err := ctx.Write(msg); err != nil {
		return err
	}
	if msg == "ping" {
		return ctx.Channel().Write("pong")
	}
	return nil
}

func TestUnit_PipelineChannelWriteFromOutbound(t *testing.T) {
	b, err := pipeline.NewBuilder(pipeline.Shared("notify", notifier{}), pipeline.Shared("echo", echo{}))
	casecheck.NoError(t, err)

	out := &mockTransport{id: "1"}
	p, err := b.Build(out)
	casecheck.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.FireRead("ping") }()

	select {
	case err = <-done:
		casecheck.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("write from an outbound stage blocked")
	}
	casecheck.Equal(t, "pingpong", out.String())
}

type resync struct{}

func (resync) HandleRead(ctx pipeline.Context, msg any) error {
	if msg == "bad" {
		return pipeline.Recoverable(fmt.Errorf("skip %v", msg))
	}
	return ctx.FireRead(msg)
}

func TestUnit_PipelineRecoverable(t *testing.T) {
	b, err := pipeline.NewBuilder(pipeline.Shared("resync", resync{}))
	casecheck.NoError(t, err)
	p, err := b.Build(&mockTransport{id: "1"})
	casecheck.NoError(t, err)

	err = p.FireRead("bad")
	casecheck.True(t, pipeline.IsRecoverable(err))

	stage, ok := err.(*pipeline.StageError)
	casecheck.True(t, ok)
	casecheck.Equal(t, "resync", stage.Stage)

	casecheck.False(t, pipeline.IsRecoverable(errors.New("fatal")))
	casecheck.NoError(t, pipeline.Recoverable(nil))
}
