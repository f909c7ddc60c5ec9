/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package internal_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"go.osspkg.com/casecheck"

	"go.osspkg.com/netpipe/internal"
)

func TestUnit_IsNormalCloseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: true},
		{name: "eof", err: io.EOF, want: true},
		{name: "wrapped eof", err: fmt.Errorf("read: %w", io.EOF), want: true},
		{name: "closed", err: net.ErrClosed, want: true},
		{name: "other", err: fmt.Errorf("frame too long"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			casecheck.Equal(t, tt.want, internal.IsNormalCloseError(tt.err))
		})
	}
}

func TestUnit_NotZero(t *testing.T) {
	casecheck.Equal(t, 3, internal.NotZero(0, -1, 3, 4))
	casecheck.Equal(t, 0, internal.NotZero[int]())
}

func TestUnit_BytesGrow(t *testing.T) {
	b := internal.ChunkPool.Get()
	defer internal.ChunkPool.Put(b)

	casecheck.Equal(t, 16, len(b.Grow(16)))
	casecheck.Equal(t, 10000, len(b.Grow(10000)))
	casecheck.Equal(t, internal.DefaultChunkSize, len(b.Grow(0)))
}

type deadlineRecorder struct {
	got time.Time
}

func (d *deadlineRecorder) SetDeadline(t time.Time) error {
	d.got = t
	return nil
}

func TestUnit_DeadlineFromContext(t *testing.T) {
	rec := &deadlineRecorder{got: time.Now()}
	casecheck.NoError(t, internal.DeadlineFromContext(context.TODO(), rec))
	casecheck.True(t, rec.got.IsZero())

	ctx, cancel := context.WithTimeout(context.TODO(), time.Minute)
	defer cancel()
	dl, _ := ctx.Deadline()

	casecheck.NoError(t, internal.DeadlineFromContext(ctx, rec))
	casecheck.True(t, rec.got.Equal(dl))
}
