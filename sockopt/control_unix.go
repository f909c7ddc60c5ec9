//go:build unix

/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package sockopt

import (
	"strings"
	"syscall"

	"go.osspkg.com/errors"
	"golang.org/x/sys/unix"
)

// Control returns a net.ListenConfig hook setting listen scoped values before bind.
func (v Values) Control() func(network, address string, c syscall.RawConn) error {
	if v.IsEmpty() {
		return nil
	}

	return func(network, _ string, c syscall.RawConn) error {
		var err error
		cerr := c.Control(func(fd uintptr) {
			err = v.setFD(int(fd), strings.HasPrefix(network, "tcp"))
		})
		return errors.Wrap(cerr, err)
	}
}

func (v Values) setFD(fd int, tcp bool) (err error) {
	if v.ReuseAddress != nil {
		err = errors.Wrap(err, wrapOpt(ReuseAddress,
			unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolInt(*v.ReuseAddress))))
	}
	if v.KeepAlive != nil {
		err = errors.Wrap(err, wrapOpt(KeepAlive,
			unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolInt(*v.KeepAlive))))
	}
	if v.ReceiveBufferSize != nil {
		err = errors.Wrap(err, wrapOpt(ReceiveBufferSize,
			unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, *v.ReceiveBufferSize)))
	}
	if v.SendBufferSize != nil {
		err = errors.Wrap(err, wrapOpt(SendBufferSize,
			unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, *v.SendBufferSize)))
	}
	if v.Linger != nil {
		l := &unix.Linger{}
		if *v.Linger >= 0 {
			l.Onoff, l.Linger = 1, int32(*v.Linger)
		}
		err = errors.Wrap(err, wrapOpt(SoLinger,
			unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, l)))
	}
	if v.TCPNoDelay != nil && tcp {
		err = errors.Wrap(err, wrapOpt(TCPNoDelay,
			unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolInt(*v.TCPNoDelay))))
	}
	return
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
