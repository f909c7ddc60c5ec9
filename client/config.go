/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package client

import (
	"fmt"
	"net"
	"time"

	"go.osspkg.com/netpipe/internal"
)

type Config struct {
	Network string `yaml:"network"`
	Address string `yaml:"address"`
	// Options take the server option names without the child prefix,
	// connectTimeoutMillis bounds the dial.
	Options  map[string]any `yaml:"options,omitempty"`
	MaxConns uint64         `yaml:"max_conns"`
	// IdleTimeout keeps a finished connection for the next call, 0 closes it right away.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

func (c Config) Resolve() (addr fmt.Stringer, err error) {
	if len(c.Network) == 0 {
		c.Network = internal.NetTCP
	}
	if err := internal.IsPassableNetwork(c.Network); err != nil {
		return nil, err
	}

	switch c.Network {
	case internal.NetUNIX:
		return net.ResolveUnixAddr(internal.NetUNIX, c.Address)
	default:
		return net.ResolveTCPAddr(internal.NetTCP, c.Address)
	}
}
