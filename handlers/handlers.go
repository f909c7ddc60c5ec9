/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

// Package handlers contains ready business stages for text pipelines.
package handlers

import (
	"fmt"
	"strings"
	"sync/atomic"

	"go.osspkg.com/logx"

	"go.osspkg.com/netpipe/pipeline"
)

// Uppercase answers every text frame with its upper case form. Stateless, share it.
type Uppercase struct{}

func (Uppercase) HandleRead(ctx pipeline.Context, msg any) error {
	s, ok := msg.(string)
	if !ok {
		return fmt.Errorf("uppercase: want string, got %T", msg)
	}
	return ctx.Write(strings.ToUpper(s))
}

// Echo writes every message back unchanged. Stateless, share it.
type Echo struct{}

func (Echo) HandleRead(ctx pipeline.Context, msg any) error {
	return ctx.Write(msg)
}

type Report struct {
	Frame  string `cbor:"frame" json:"frame"`
	Length int    `cbor:"length" json:"length"`
	Seq    uint64 `cbor:"seq" json:"seq"`
	Total  uint64 `cbor:"total" json:"total"`
}

// Reporter logs every frame and answers with a Report. The sequence number is per connection,
// the total counter is shared by all reporters created from the same Counter.
type Reporter struct {
	seq   uint64
	total *atomic.Uint64
}

type Counter struct {
	Total *atomic.Uint64
}

func NewReporter(c Counter) (*Reporter, error) {
	if c.Total == nil {
		c.Total = new(atomic.Uint64)
	}
	return &Reporter{total: c.Total}, nil
}

func (v *Reporter) HandleRead(ctx pipeline.Context, msg any) error {
	s, ok := msg.(string)
	if !ok {
		return fmt.Errorf("reporter: want string, got %T", msg)
	}
	v.seq++
	r := Report{Frame: s, Length: len(s), Seq: v.seq, Total: v.total.Add(1)}
	logx.Info("Reporter: frame", "id", ctx.Channel().ID(), "addr", ctx.Channel().RemoteAddr(), "frame", s, "seq", r.Seq)
	return ctx.Write(r)
}

func (v *Reporter) HandleInactive(ctx pipeline.Context, err error) {
	logx.Debug("Reporter: connection closed", "id", ctx.Channel().ID(), "frames", v.seq, "cause", err)
}
