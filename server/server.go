/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package server

import (
	"context"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.osspkg.com/do"
	"go.osspkg.com/errors"
	"go.osspkg.com/ioutils/fs"
	"go.osspkg.com/logx"

	"go.osspkg.com/netpipe/errs"
	"go.osspkg.com/netpipe/internal"
	"go.osspkg.com/netpipe/internal/workers"
	"go.osspkg.com/netpipe/pipeline"
	"go.osspkg.com/netpipe/sockopt"
)

type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "stopped"
	}
}

const (
	acceptBackoffMin = 5 * time.Millisecond
	acceptBackoffMax = time.Second
)

type (
	// Registrar receives every server built with WithRegistrar, usually a management registry.
	Registrar interface {
		Register(name string, s *Server) error
	}

	Option func(s *Server)

	// Counter is a value maintained outside the server, a stage or a handler, *atomic.Uint64 fits.
	Counter interface {
		Load() uint64
	}

	Server struct {
		conf    Config
		opts    sockopt.Options
		builder *pipeline.Builder
		tail    pipeline.TailFunc
		reg     Registrar
		extra   map[string]Counter

		// mux serializes Start and Stop, fmux guards the fields they swap.
		mux   sync.Mutex
		fmux  sync.RWMutex
		state atomic.Int32
		cur   *run
		done  chan struct{}
		stats counters
	}

	// run holds everything owned by one Start..Stop cycle.
	run struct {
		listener   net.Listener
		ctx        context.Context
		cancel     context.CancelFunc
		accept     *workers.Pool
		io         *workers.Pool
		acceptDone chan struct{}

		cmux   sync.Mutex
		conns  map[string]*channel
		connWG sync.WaitGroup
	}
)

func WithRegistrar(r Registrar) Option {
	return func(s *Server) {
		s.reg = r
	}
}

// WithCounter publishes c in Stats.Counters under name.
func WithCounter(name string, c Counter) Option {
	return func(s *Server) {
		if c == nil {
			return
		}
		if s.extra == nil {
			s.extra = make(map[string]Counter)
		}
		s.extra[name] = c
	}
}

// WithTail receives messages that leave the last inbound stage of every connection.
func WithTail(fn pipeline.TailFunc) Option {
	return func(s *Server) {
		s.tail = fn
	}
}

// New validates the config and the descriptor list. Nothing is bound until Start.
func New(conf Config, descs []pipeline.Descriptor, opts ...Option) (*Server, error) {
	conf, sopts, err := conf.normalize()
	if err != nil {
		return nil, err
	}

	builder, err := pipeline.NewBuilder(descs...)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	close(done)

	s := &Server{
		conf:    conf,
		opts:    sopts,
		builder: builder,
		done:    done,
	}
	for _, opt := range opts {
		opt(s)
	}

	if sopts.Listen.ConnectTimeout > 0 || sopts.Child.ConnectTimeout > 0 {
		logx.Warn("Server: option is ignored for accepted connections",
			"name", conf.Name, "option", sockopt.ConnectTimeoutMillis)
	}

	if s.reg != nil {
		if err = s.reg.Register(conf.Name, s); err != nil {
			return nil, errors.Wrapf(err, "register server %s", conf.Name)
		}
	}

	return s, nil
}

func (s *Server) Name() string { return s.conf.Name }

func (s *Server) Config() Config {
	c := s.conf
	c.Options = make(map[string]any, len(s.conf.Options))
	for k, v := range s.conf.Options {
		c.Options[k] = v
	}
	return c
}

func (s *Server) SocketOptions() sockopt.Options { return s.opts }

func (s *Server) State() State { return State(s.state.Load()) }

// Addr is the bound address while running, nil otherwise.
func (s *Server) Addr() net.Addr {
	if r := s.current(); r != nil {
		return r.listener.Addr()
	}
	return nil
}

func (s *Server) current() *run {
	s.fmux.RLock()
	defer s.fmux.RUnlock()

	return s.cur
}

// Done is closed when the current run is over, either by Stop or by a listener failure.
func (s *Server) Done() <-chan struct{} {
	s.fmux.RLock()
	defer s.fmux.RUnlock()

	return s.done
}

func (s *Server) Start(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if !s.state.CompareAndSwap(int32(Stopped), int32(Starting)) {
		return errs.ErrAlreadyRunning
	}

	l, err := s.listen(ctx)
	if err != nil {
		s.state.Store(int32(Stopped))
		logx.Error("Server: bind", "name", s.conf.Name, "err", err)
		return err
	}

	addr := l.Addr().String()
	r := &run{
		listener:   l,
		accept:     workers.New("accept-["+addr+"]", s.conf.WorkerIdleTimeout),
		io:         workers.New("io-["+addr+"]", s.conf.WorkerIdleTimeout),
		acceptDone: make(chan struct{}),
		conns:      make(map[string]*channel),
	}
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))

	s.fmux.Lock()
	s.cur = r
	s.done = make(chan struct{})
	s.fmux.Unlock()
	s.state.Store(int32(Running))

	if err = r.accept.Submit(func() { s.acceptLoop(r) }); err != nil {
		s.release(r)
		return err
	}

	logx.Info("Server: started", "name", s.conf.Name, "network", s.conf.Network, "address", addr)
	return nil
}

func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	if s.conf.Network == internal.NetUNIX && fs.FileExist(s.conf.Address) {
		if err := os.Remove(s.conf.Address); err != nil {
			return nil, &errs.BindError{Network: s.conf.Network, Address: s.conf.Address,
				Err: errors.Wrapf(err, "fail clean socket file")}
		}
	}

	lc := net.ListenConfig{Control: s.opts.Listen.Control()}
	l, err := lc.Listen(ctx, s.conf.Network, s.conf.Address)
	if err != nil {
		return nil, &errs.BindError{Network: s.conf.Network, Address: s.conf.Address, Err: err}
	}
	return l, nil
}

// Stop drains every connection within the shutdown timeout and force closes the rest.
// The server is stopped when Stop returns, a *errs.ShutdownTimeoutError only reports
// that the grace period expired.
func (s *Server) Stop(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	r := s.current()
	if r == nil || !s.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		return nil
	}

	logx.Info("Server: stopping", "name", s.conf.Name, "connections", r.count())

	internal.WriteErrLog("Server: close listener", r.listener.Close(), "name", s.conf.Name)
	<-r.acceptDone
	r.accept.Close()

	for _, ch := range r.snapshot() {
		internal.WriteErrLog("Server: drain connection", ch.drain(), "id", ch.id)
	}

	drained := make(chan struct{})
	go func() {
		r.connWG.Wait()
		close(drained)
	}()

	deadline := time.Now().Add(s.conf.ShutdownTimeout)
	timer := time.NewTimer(s.conf.ShutdownTimeout)
	defer timer.Stop()

	var result error
	select {
	case <-drained:
	case <-timer.C:
		result = s.forceClose(r)
	case <-ctx.Done():
		result = s.forceClose(r)
	}

	r.io.Close()
	// force closed loops get what is left of the grace period to leave
	waitFor(func() {
		<-drained
		r.accept.Wait()
		r.io.Wait()
	}, time.Until(deadline))

	s.release(r)
	logx.Info("Server: stopped", "name", s.conf.Name)

	return result
}

func (s *Server) release(r *run) {
	internal.WriteErrLog("Server: close listener", r.listener.Close(), "name", s.conf.Name)
	r.accept.Close()
	r.io.Close()
	r.cancel()

	s.fmux.Lock()
	s.cur = nil
	s.state.Store(int32(Stopped))
	close(s.done)
	s.fmux.Unlock()
}

func (s *Server) forceClose(r *run) error {
	rest := r.snapshot()
	if len(rest) == 0 {
		return nil
	}
	for _, ch := range rest {
		internal.WriteErrLog("Server: force close", ch.Close(), "id", ch.id)
	}

	err := &errs.ShutdownTimeoutError{Remaining: len(rest), Grace: s.conf.ShutdownTimeout}
	logx.Error("Server: shutdown", "name", s.conf.Name, "err", err)
	return err
}

func (s *Server) acceptLoop(r *run) {
	defer close(r.acceptDone)

	var delay time.Duration
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			if s.State() != Running {
				return
			}
			if internal.IsTemporary(err) {
				delay = backoff(delay)
				logx.Warn("Server: accept", "name", s.conf.Name, "err", err, "retry", delay)
				select {
				case <-time.After(delay):
					continue
				case <-r.ctx.Done():
					return
				}
			}

			logx.Error("Server: accept", "name", s.conf.Name, "err", err)
			do.Async(func() {
				internal.WriteErrLog("Server: stop after accept failure", s.Stop(context.Background()), "name", s.conf.Name)
			}, func(e error) {
				logx.Error("Server: stop panic", "name", s.conf.Name, "err", e)
			})
			return
		}

		delay = 0
		s.accept(r, conn)
	}
}

func (s *Server) accept(r *run, conn net.Conn) {
	if limit := s.conf.MaxConns; limit > 0 && r.count() >= limit {
		s.stats.rejected.Add(1)
		logx.Warn("Server: connection rejected", "name", s.conf.Name, "remote", conn.RemoteAddr(), "max_conns", limit)
		internal.WriteErrLog("Server: close rejected", conn.Close())
		return
	}

	ch := newChannel(r.ctx, s, conn)

	if err := sockopt.ApplyConn(conn, s.opts.Child); err != nil {
		s.fail(ch, "options", err)
		return
	}

	p, err := s.builder.Build(ch, pipeline.WithTail(s.tail))
	if err != nil {
		s.fail(ch, "pipeline", err)
		return
	}

	r.add(ch)
	s.stats.accepted.Add(1)

	if err = r.io.Submit(func() { s.serve(r, ch, p) }); err != nil {
		r.remove(ch)
		s.fail(ch, "submit", err)
	}
}

func (s *Server) fail(ch *channel, op string, err error) {
	s.stats.failed.Add(1)
	logx.Warn("Server: connection", "name", s.conf.Name,
		"err", &errs.ConnectionError{ID: ch.id, Remote: ch.RemoteAddr(), Op: op, Err: err})
	internal.WriteErrLog("Server: close connection", ch.Close(), "id", ch.id)
}

func (s *Server) serve(r *run, ch *channel, p *pipeline.Pipeline) {
	var cause error

	defer func() {
		internal.WriteErrLog("Server: close connection", ch.Close(), "id", ch.id)
		s.stats.closed.Add(1)
		r.remove(ch)
	}()

	if cause = p.FireActive(); cause == nil {
		cause = s.read(ch, p)
	}

	if cause != nil && !internal.IsNormalCloseError(cause) {
		s.stats.failed.Add(1)
		logx.Warn("Server: connection", "name", s.conf.Name,
			"err", &errs.ConnectionError{ID: ch.id, Remote: ch.RemoteAddr(), Op: "read", Err: cause})
	}

	p.FireInactive(internal.NormalCloseError(cause))
}

func (s *Server) read(ch *channel, p *pipeline.Pipeline) error {
	chunk := internal.ChunkPool.Get()
	defer internal.ChunkPool.Put(chunk)

	buf := chunk.Grow(s.conf.ReadBufferSize)

	for {
		if err := ch.armRead(s.conf.IdleTimeout); err != nil {
			return err
		}

		n, err := ch.conn.Read(buf)
		if n > 0 {
			s.stats.bytesIn.Add(uint64(n))
			msg := make([]byte, n)
			copy(msg, buf[:n])
			if e := p.FireRead(msg); e != nil {
				if !pipeline.IsRecoverable(e) {
					return e
				}
				s.stats.recovered.Add(1)
				logx.Warn("Server: connection", "name", s.conf.Name,
					"err", &errs.ConnectionError{ID: ch.id, Remote: ch.RemoteAddr(), Op: "read", Err: e})
			}
		}
		if err != nil {
			if ch.isDraining() {
				return nil
			}
			return err
		}
	}
}

func (r *run) add(ch *channel) {
	r.cmux.Lock()
	defer r.cmux.Unlock()

	r.connWG.Add(1)
	r.conns[ch.id] = ch
}

func (r *run) remove(ch *channel) {
	r.cmux.Lock()
	defer r.cmux.Unlock()

	if _, ok := r.conns[ch.id]; !ok {
		return
	}
	delete(r.conns, ch.id)
	r.connWG.Done()
}

func (r *run) count() int {
	r.cmux.Lock()
	defer r.cmux.Unlock()

	return len(r.conns)
}

func (r *run) snapshot() []*channel {
	r.cmux.Lock()
	defer r.cmux.Unlock()

	out := make([]*channel, 0, len(r.conns))
	for _, ch := range r.conns {
		out = append(out, ch)
	}
	return out
}

func backoff(d time.Duration) time.Duration {
	if d == 0 {
		return acceptBackoffMin
	}
	if d *= 2; d > acceptBackoffMax {
		return acceptBackoffMax
	}
	return d
}

func waitFor(fn func(), timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()

	if timeout <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
