/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package server

import (
	"time"

	"go.osspkg.com/netpipe/address"
	"go.osspkg.com/netpipe/errs"
	"go.osspkg.com/netpipe/internal"
	"go.osspkg.com/netpipe/sockopt"
)

const (
	DefaultShutdownTimeout = 5 * time.Second
	DefaultReadBufferSize  = internal.DefaultChunkSize
)

type Config struct {
	Name    string         `yaml:"name,omitempty"`
	Network string         `yaml:"network"`
	Address string         `yaml:"address"`
	Options map[string]any `yaml:"options,omitempty"`
	// ShutdownTimeout bounds how long Stop waits for connections to drain.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
	// IdleTimeout closes a connection that sent nothing for this long, 0 disables it.
	IdleTimeout  time.Duration `yaml:"idle_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
	// ReadBufferSize is the size of one socket read handed to the pipeline.
	ReadBufferSize int `yaml:"read_buffer_size,omitempty"`
	// MaxConns rejects connections above the limit, 0 means unlimited.
	MaxConns          int           `yaml:"max_conns,omitempty"`
	WorkerIdleTimeout time.Duration `yaml:"worker_idle_timeout,omitempty"`
}

func (c Config) normalize() (Config, sockopt.Options, error) {
	if len(c.Network) == 0 {
		c.Network = internal.NetTCP
	}
	if err := internal.IsPassableNetwork(c.Network); err != nil {
		return c, sockopt.Options{}, &errs.ConfigurationError{Field: "network", Reason: "unsupported", Err: err}
	}

	switch c.Network {
	case internal.NetTCP:
		addr, err := address.Normalize(c.Address)
		if err != nil {
			return c, sockopt.Options{}, &errs.ConfigurationError{Field: "address", Reason: "invalid", Err: err}
		}
		c.Address = addr
	case internal.NetUNIX:
		if len(c.Address) == 0 {
			return c, sockopt.Options{}, errs.Configuration("address", "unix socket path is empty")
		}
	}

	opts, err := sockopt.Parse(c.Options)
	if err != nil {
		return c, sockopt.Options{}, err
	}

	if c.ShutdownTimeout < 0 || c.IdleTimeout < 0 || c.WriteTimeout < 0 || c.WorkerIdleTimeout < 0 {
		return c, sockopt.Options{}, errs.Configuration("timeouts", "must not be negative")
	}
	if c.ReadBufferSize < 0 || c.MaxConns < 0 {
		return c, sockopt.Options{}, errs.Configuration("limits", "must not be negative")
	}

	c.ShutdownTimeout = internal.NotZero(c.ShutdownTimeout, DefaultShutdownTimeout)
	c.ReadBufferSize = internal.NotZero(c.ReadBufferSize, DefaultReadBufferSize)

	if len(c.Name) == 0 {
		c.Name = c.Network + "-[" + c.Address + "]"
	}

	options := make(map[string]any, len(c.Options))
	for k, v := range c.Options {
		options[k] = v
	}
	c.Options = options

	return c, opts, nil
}
