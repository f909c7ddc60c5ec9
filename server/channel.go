/*
 *  Copyright (c) 2024 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ConnInfo struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	Since      time.Time `json:"since"`
}

// channel is the transport a pipeline writes to, one per accepted connection.
type channel struct {
	id     string
	conn   net.Conn
	srv    *Server
	since  time.Time
	ctx    context.Context
	cancel context.CancelFunc

	wmux sync.Mutex
	dmux sync.Mutex
	once sync.Once

	draining bool
}

func newChannel(ctx context.Context, srv *Server, conn net.Conn) *channel {
	ch := &channel{
		id:    uuid.NewString(),
		conn:  conn,
		srv:   srv,
		since: time.Now(),
	}
	ch.ctx, ch.cancel = context.WithCancel(ctx)
	return ch
}

func (v *channel) ID() string               { return v.id }
func (v *channel) LocalAddr() net.Addr      { return v.conn.LocalAddr() }
func (v *channel) RemoteAddr() net.Addr     { return v.conn.RemoteAddr() }
func (v *channel) Context() context.Context { return v.ctx }

func (v *channel) Info() ConnInfo {
	info := ConnInfo{ID: v.id, Since: v.since}
	if addr := v.conn.RemoteAddr(); addr != nil {
		info.RemoteAddr = addr.String()
	}
	return info
}

// Write is serialized, a write in progress during shutdown either completes or fails with an error.
func (v *channel) Write(b []byte) (int, error) {
	v.wmux.Lock()
	defer v.wmux.Unlock()

	if t := v.srv.conf.WriteTimeout; t > 0 {
		if err := v.conn.SetWriteDeadline(time.Now().Add(t)); err != nil {
			return 0, err
		}
	}

	n, err := v.conn.Write(b)
	v.srv.stats.bytesOut.Add(uint64(n))
	return n, err
}

func (v *channel) Close() (err error) {
	v.once.Do(func() {
		v.cancel()
		err = v.conn.Close()
	})
	return
}

// armRead sets the idle deadline for the next read unless the channel is draining.
func (v *channel) armRead(idle time.Duration) error {
	if idle <= 0 {
		return nil
	}

	v.dmux.Lock()
	defer v.dmux.Unlock()

	if v.draining {
		return nil
	}
	return v.conn.SetReadDeadline(time.Now().Add(idle))
}

// drain wakes up a pending read so the connection loop can leave on its own.
func (v *channel) drain() error {
	v.dmux.Lock()
	defer v.dmux.Unlock()

	v.draining = true
	return v.conn.SetReadDeadline(time.Now())
}

func (v *channel) isDraining() bool {
	v.dmux.Lock()
	defer v.dmux.Unlock()

	return v.draining
}
