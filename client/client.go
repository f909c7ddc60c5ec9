/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"go.osspkg.com/algorithms/control"
	"go.osspkg.com/errors"

	"go.osspkg.com/netpipe/internal"
	"go.osspkg.com/netpipe/sockopt"
)

type Client struct {
	conf   Config
	dialer net.Dialer
	sem    control.Semaphore
	pool   *chanPool[*connect]
}

func New(c Config) (*Client, error) {
	if len(c.Network) == 0 {
		c.Network = internal.NetTCP
	}

	addr, err := c.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolve address: %w", err)
	}
	c.Address = addr.String()

	opts, err := sockopt.Parse(c.Options)
	if err != nil {
		return nil, err
	}

	if c.MaxConns <= 0 {
		c.MaxConns = 1
	}

	cli := &Client{
		conf: c,
		sem:  control.NewSemaphore(c.MaxConns),
		dialer: net.Dialer{
			Timeout: opts.Listen.ConnectTimeout,
			Control: opts.Listen.Control(),
		},
	}
	cli.pool = newChanPool[*connect](int(c.MaxConns), cli.dial)

	return cli, nil
}

func (v *Client) dial(ctx context.Context) *connect {
	conn, err := v.dialer.DialContext(ctx, v.conf.Network, v.conf.Address)
	if err != nil {
		return &connect{Err: fmt.Errorf("dial %s: %w", v.conf.Network, err)}
	}
	return &connect{Conn: conn, Timeout: v.conf.IdleTimeout}
}

// Call hands a connection to handler, the deadline of ctx applies to the whole exchange.
func (v *Client) Call(ctx context.Context, handler func(ctx context.Context, w io.Writer, r io.Reader) error) (e error) {
	v.sem.Acquire()
	defer func() { v.sem.Release() }()

	conn := v.pool.GetIdleOrCreateConn(ctx)
	if err := conn.GetError(); err != nil {
		return err
	}

	if err := internal.DeadlineFromContext(ctx, conn.Conn); err != nil {
		conn.Close()
		return err
	}

	defer func() {
		if e != nil {
			writeLog(e, "Client: call", v.conf.Network, v.conf.Address)
			conn.Close()
			return
		}
		conn.IdleAt = time.Now()
		v.pool.PutOrCloseIdleConn(conn)
	}()

	e = handler(ctx, conn, conn)

	return
}

// Exchange writes payload and collects the reply until the peer is silent for wait or hangs up.
func (v *Client) Exchange(ctx context.Context, payload []byte, wait time.Duration) ([]byte, error) {
	var out bytes.Buffer

	err := v.Call(ctx, func(ctx context.Context, w io.Writer, r io.Reader) error {
		if _, err := w.Write(payload); err != nil {
			return err
		}

		conn, ok := r.(*connect)
		if !ok {
			_, err := io.Copy(&out, r)
			return err
		}

		buf := make([]byte, internal.DefaultChunkSize)
		for {
			if err := conn.Conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
				return err
			}
			n, err := conn.Read(buf)
			out.Write(buf[:n])

			switch {
			case err == nil:
				continue
			case errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF):
				return nil
			default:
				return err
			}
		}
	})

	return out.Bytes(), err
}

// Close drops idle connections, calls in progress are not affected.
func (v *Client) Close() {
	v.pool.CloseIdle()
}
