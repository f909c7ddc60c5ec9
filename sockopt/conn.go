/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package sockopt

import (
	"fmt"
	"net"

	"go.osspkg.com/errors"
)

type (
	noDelayer interface {
		SetNoDelay(bool) error
	}
	keepAliver interface {
		SetKeepAlive(bool) error
	}
	lingerer interface {
		SetLinger(sec int) error
	}
	bufferSizer interface {
		SetReadBuffer(bytes int) error
		SetWriteBuffer(bytes int) error
	}
)

// ApplyConn sets child scoped values on an accepted connection.
// Options the connection type does not support (tcp options on a unix socket) are skipped.
func ApplyConn(conn net.Conn, v Values) (err error) {
	if v.TCPNoDelay != nil {
		if c, ok := conn.(noDelayer); ok {
			err = errors.Wrap(err, wrapOpt(TCPNoDelay, c.SetNoDelay(*v.TCPNoDelay)))
		}
	}
	if v.KeepAlive != nil {
		if c, ok := conn.(keepAliver); ok {
			err = errors.Wrap(err, wrapOpt(KeepAlive, c.SetKeepAlive(*v.KeepAlive)))
		}
	}
	if v.Linger != nil {
		if c, ok := conn.(lingerer); ok {
			err = errors.Wrap(err, wrapOpt(SoLinger, c.SetLinger(*v.Linger)))
		}
	}
	if c, ok := conn.(bufferSizer); ok {
		if v.ReceiveBufferSize != nil {
			err = errors.Wrap(err, wrapOpt(ReceiveBufferSize, c.SetReadBuffer(*v.ReceiveBufferSize)))
		}
		if v.SendBufferSize != nil {
			err = errors.Wrap(err, wrapOpt(SendBufferSize, c.SetWriteBuffer(*v.SendBufferSize)))
		}
	}
	return
}

func wrapOpt(name Name, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("set %s: %w", name, err)
}
