/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

// Package errs holds the error taxonomy shared by the server, the pipeline and the socket options.
package errs

import (
	"fmt"
	"net"
	"time"

	"go.osspkg.com/errors"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrBind            = errors.New("bind error")
	ErrConnection      = errors.New("connection error")
	ErrShutdownTimeout = errors.New("shutdown timeout")
	ErrAlreadyRunning  = errors.New("server already running")
)

// ConfigurationError reports an invalid option, descriptor or config field.
// It is raised while the server is constructed and never per connection.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func Configuration(field, reason string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(reason, args...)}
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// BindError is returned by Start when the listening socket can not be opened.
type BindError struct {
	Network string
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrBind, e.Network, e.Address, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

func (e *BindError) Is(target error) bool { return target == ErrBind }

// ConnectionError is logged when a single connection fails. It never leaves the connection loop.
type ConnectionError struct {
	ID     string
	Remote net.Addr
	Op     string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s [%s %v]: %v", ErrConnection, e.Op, e.ID, e.Remote, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// ShutdownTimeoutError tells that Remaining connections were force closed
// because they did not drain within Grace.
type ShutdownTimeoutError struct {
	Remaining int
	Grace     time.Duration
}

func (e *ShutdownTimeoutError) Error() string {
	return fmt.Sprintf("%s: %d connection(s) force closed after %s", ErrShutdownTimeout, e.Remaining, e.Grace)
}

func (e *ShutdownTimeoutError) Is(target error) bool { return target == ErrShutdownTimeout }
