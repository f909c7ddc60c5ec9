/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package client

import (
	"context"
	"io"
	"net"
	"os"
	"time"

	"go.osspkg.com/errors"
)

// connect is one dialed connection, kept between calls while it is healthy.
type connect struct {
	Conn    net.Conn
	Err     error
	IdleAt  time.Time
	Timeout time.Duration
	// spent is set once a read hit EOF or its deadline, late bytes of the old reply may still arrive.
	spent bool
}

func (c *connect) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if err != nil && (errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded)) {
		c.spent = true
	}
	return n, err
}

func (c *connect) Write(p []byte) (int, error) {
	return c.Conn.Write(p)
}

func (c *connect) Close() {
	if c.Conn != nil {
		c.Conn.Close() //nolint:errcheck
	}
}

func (c *connect) IsFailConn() bool {
	return c.Err != nil || c.spent || c.Timeout <= 0 || time.Since(c.IdleAt) > c.Timeout
}

func (c *connect) GetError() error {
	return c.Err
}

type (
	object interface {
		Close()
		IsFailConn() bool
		GetError() error
	}

	chanPool[T object] struct {
		c    chan T
		call func(ctx context.Context) T
	}
)

func newChanPool[T object](size int, call func(ctx context.Context) T) *chanPool[T] {
	return &chanPool[T]{
		c:    make(chan T, size+1),
		call: call,
	}
}

func (p *chanPool[T]) GetIdleOrCreateConn(ctx context.Context) (v T) {
	for {
		select {
		case v = <-p.c:
		default:
			return p.call(ctx)
		}

		if v.IsFailConn() {
			v.Close()
			continue
		}

		return
	}
}

func (p *chanPool[T]) PutOrCloseIdleConn(v T) {
	if v.IsFailConn() {
		v.Close()
		return
	}

	select {
	case p.c <- v:
		return
	default:
		v.Close()
	}
}

// CloseIdle closes every kept connection.
func (p *chanPool[T]) CloseIdle() {
	for {
		select {
		case v := <-p.c:
			v.Close()
		default:
			return
		}
	}
}
