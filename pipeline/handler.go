/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

// Package pipeline composes per-connection chains of stages.
//
// Inbound messages travel from the first declared stage to the last one,
// outbound messages travel from the writing stage back to the first one and then to the socket.
//
//	[0 encoder] [1 frame] [2 decoder] [3 business]
//	  read:        --->       --->        --->
//	  write: <---------------------------  ctx.Write
package pipeline

import (
	"context"
	"net"
)

type (
	// InboundHandler receives messages travelling from the socket to the business logic.
	// It forwards with ctx.FireRead, may keep a message buffered or consume it.
	InboundHandler interface {
		HandleRead(ctx Context, msg any) error
	}

	// OutboundHandler receives messages travelling to the socket and forwards with ctx.Write.
	OutboundHandler interface {
		HandleWrite(ctx Context, msg any) error
	}

	ActiveHandler interface {
		HandleActive(ctx Context) error
	}

	InactiveHandler interface {
		HandleInactive(ctx Context, err error)
	}

	Context interface {
		// Name is the descriptor name of the stage.
		Name() string
		Channel() Channel
		// FireRead passes msg to the next inbound stage.
		FireRead(msg any) error
		// Write passes msg to the previous outbound stage.
		Write(msg any) error
		Close() error
	}

	// Channel is the connection as it is seen by the stages.
	Channel interface {
		ID() string
		LocalAddr() net.Addr
		RemoteAddr() net.Addr
		Context() context.Context
		// Write sends msg through every outbound stage. Writes are serialized per connection,
		// an outbound stage calling it re-enters the chain under the lock it already holds.
		Write(msg any) error
		Close() error
	}

	// Transport is the raw connection a pipeline is attached to.
	Transport interface {
		ID() string
		LocalAddr() net.Addr
		RemoteAddr() net.Addr
		Context() context.Context
		Write(b []byte) (int, error)
		Close() error
	}

	// TailFunc receives inbound messages no stage consumed.
	TailFunc func(ch Channel, msg any) error
)

func isHandler(h any) bool {
	switch h.(type) {
	case InboundHandler, OutboundHandler, ActiveHandler, InactiveHandler:
		return true
	default:
		return false
	}
}
