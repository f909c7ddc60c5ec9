//go:build !unix

/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package sockopt

import (
	"fmt"
	"syscall"
)

func (v Values) Control() func(network, address string, c syscall.RawConn) error {
	if v.IsEmpty() {
		return nil
	}
	return func(string, string, syscall.RawConn) error {
		return fmt.Errorf("listen socket options are not supported on this platform")
	}
}
