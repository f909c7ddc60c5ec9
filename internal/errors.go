/*
 *  Copyright (c) 2024 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package internal

import (
	"io"
	"net"
	"os"
	"strings"
	"syscall"

	"go.osspkg.com/errors"
	"go.osspkg.com/logx"
)

func NormalCloseError(err error) error {
	if IsNormalCloseError(err) {
		return nil
	}
	return err
}

// IsNormalCloseError reports errors produced by a peer hangup or by our own Close.
func IsNormalCloseError(err error) bool {
	if err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		return true
	}
	return false
}

func IsTemporary(err error) bool {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE)
}

func WriteErrLog(message string, err error, args ...any) {
	if err == nil || IsNormalCloseError(err) {
		return
	}
	logx.Warn(message, append([]any{"err", err}, args...)...)
}
