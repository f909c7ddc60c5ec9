/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

// Package sockopt parses socket options and applies them either to the listening
// socket or to every accepted child socket.
package sockopt

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.osspkg.com/netpipe/errs"
)

type Name string

const (
	ConnectTimeoutMillis Name = "connectTimeoutMillis"
	ReuseAddress         Name = "reuseAddress"
	TCPNoDelay           Name = "tcpNoDelay"
	SoLinger             Name = "soLinger"
	KeepAlive            Name = "keepAlive"
	ReceiveBufferSize    Name = "receiveBufferSize"
	SendBufferSize       Name = "sendBufferSize"
)

// ChildPrefix scopes an option to accepted connections instead of the listening socket.
const ChildPrefix = "child."

type Scope uint8

const (
	ScopeListen Scope = iota
	ScopeChild
)

func (s Scope) String() string {
	if s == ScopeChild {
		return "child"
	}
	return "listen"
}

// Values is the typed form of one option scope. Nil pointers leave the OS default untouched.
type Values struct {
	ReuseAddress      *bool
	TCPNoDelay        *bool
	KeepAlive         *bool
	Linger            *int
	ReceiveBufferSize *int
	SendBufferSize    *int
	// ConnectTimeout only matters to a dialing socket, a server keeps it for inspection.
	ConnectTimeout time.Duration
}

func (v Values) IsEmpty() bool {
	return v.ReuseAddress == nil && v.TCPNoDelay == nil && v.KeepAlive == nil &&
		v.Linger == nil && v.ReceiveBufferSize == nil && v.SendBufferSize == nil && v.ConnectTimeout == 0
}

// Map renders the values back to option names, used by the management api.
func (v Values) Map() map[string]any {
	out := make(map[string]any, 7)
	if v.ReuseAddress != nil {
		out[string(ReuseAddress)] = *v.ReuseAddress
	}
	if v.TCPNoDelay != nil {
		out[string(TCPNoDelay)] = *v.TCPNoDelay
	}
	if v.KeepAlive != nil {
		out[string(KeepAlive)] = *v.KeepAlive
	}
	if v.Linger != nil {
		out[string(SoLinger)] = *v.Linger
	}
	if v.ReceiveBufferSize != nil {
		out[string(ReceiveBufferSize)] = *v.ReceiveBufferSize
	}
	if v.SendBufferSize != nil {
		out[string(SendBufferSize)] = *v.SendBufferSize
	}
	if v.ConnectTimeout > 0 {
		out[string(ConnectTimeoutMillis)] = v.ConnectTimeout.Milliseconds()
	}
	return out
}

type Options struct {
	Listen Values
	Child  Values
}

func (o *Options) scope(s Scope) *Values {
	if s == ScopeChild {
		return &o.Child
	}
	return &o.Listen
}

// Parse converts a name->value mapping into typed options. Every key is validated,
// so a bad option fails here and not on the first accepted connection.
func Parse(raw map[string]any) (Options, error) {
	var opts Options

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := opts.Set(key, raw[key]); err != nil {
			return Options{}, err
		}
	}

	return opts, nil
}

// Set stores one option, key may carry the child prefix.
func (o *Options) Set(key string, value any) error {
	scope := ScopeListen
	name := key
	if strings.HasPrefix(key, ChildPrefix) {
		scope = ScopeChild
		name = strings.TrimPrefix(key, ChildPrefix)
	}

	v := o.scope(scope)
	field := "options." + key

	switch Name(name) {
	case ReuseAddress, TCPNoDelay, KeepAlive:
		b, ok := value.(bool)
		if !ok {
			return errs.Configuration(field, "want bool, got %T", value)
		}
		switch Name(name) {
		case ReuseAddress:
			v.ReuseAddress = &b
		case TCPNoDelay:
			v.TCPNoDelay = &b
		default:
			v.KeepAlive = &b
		}

	case SoLinger:
		i, err := toInt(value)
		if err != nil {
			return errs.Configuration(field, "%s", err.Error())
		}
		v.Linger = &i

	case ReceiveBufferSize, SendBufferSize:
		i, err := toInt(value)
		if err != nil {
			return errs.Configuration(field, "%s", err.Error())
		}
		if i <= 0 {
			return errs.Configuration(field, "buffer size must be positive, got %d", i)
		}
		if Name(name) == ReceiveBufferSize {
			v.ReceiveBufferSize = &i
		} else {
			v.SendBufferSize = &i
		}

	case ConnectTimeoutMillis:
		i, err := toInt(value)
		if err != nil {
			return errs.Configuration(field, "%s", err.Error())
		}
		if i < 0 {
			return errs.Configuration(field, "timeout must not be negative, got %d", i)
		}
		v.ConnectTimeout = time.Duration(i) * time.Millisecond

	default:
		return errs.Configuration(field, "unknown socket option")
	}

	return nil
}

func toInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return toInt(int64(v))
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, fmt.Errorf("value %d out of range", v)
		}
		return int(v), nil
	case uint:
		if v > math.MaxInt32 {
			return 0, fmt.Errorf("value %d out of range", v)
		}
		return int(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return toInt(int64(v))
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("want integer, got %v", v)
		}
		return toInt(int64(v))
	default:
		return 0, fmt.Errorf("want integer, got %T", value)
	}
}
