/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package main

import (
	"bytes"
	"context"
	"net"
)

type bufferTransport struct {
	*bytes.Buffer
}

func (*bufferTransport) ID() string               { return "buffer" }
func (*bufferTransport) LocalAddr() net.Addr      { return &net.TCPAddr{} }
func (*bufferTransport) RemoteAddr() net.Addr     { return &net.TCPAddr{} }
func (*bufferTransport) Context() context.Context { return context.TODO() }
func (*bufferTransport) Close() error             { return nil }
