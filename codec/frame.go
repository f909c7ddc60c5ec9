/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package codec

import (
	"bytes"
	"fmt"
	"sync/atomic"

	"go.osspkg.com/errors"

	"go.osspkg.com/netpipe/pipeline"
)

var (
	ErrFrameTooLong   = errors.New("frame too long")
	ErrUnexpectedType = errors.New("unexpected message type")
)

type DelimiterConfig struct {
	// Delimiters split the stream, the one producing the shortest frame wins.
	Delimiters [][]byte `yaml:"-"`
	// MaxFrameLength limits a frame without its delimiter, 0 means unbounded.
	MaxFrameLength int `yaml:"max_frame_length"`
	// StripDelimiter removes the delimiter from the emitted frame.
	StripDelimiter bool `yaml:"strip_delimiter"`
	// FailFast raises ErrFrameTooLong as soon as the limit is exceeded instead of
	// waiting for the delimiter of the oversized frame.
	FailFast bool `yaml:"fail_fast"`
	// Stats is shared by every decoder built from this config, nil disables counting.
	Stats *FrameStats `yaml:"-"`
}

// FrameStats counts decoded and oversized frames across connections.
type FrameStats struct {
	Frames  atomic.Uint64
	TooLong atomic.Uint64
}

func (s *FrameStats) addFrame() {
	if s != nil {
		s.Frames.Add(1)
	}
}

func (s *FrameStats) addTooLong() {
	if s != nil {
		s.TooLong.Add(1)
	}
}

func (c DelimiterConfig) Validate() error {
	if len(c.Delimiters) == 0 {
		return fmt.Errorf("delimiters are empty")
	}
	for i, d := range c.Delimiters {
		if len(d) == 0 {
			return fmt.Errorf("delimiter #%d is empty", i)
		}
	}
	if c.MaxFrameLength < 0 {
		return fmt.Errorf("max frame length is negative: %d", c.MaxFrameLength)
	}
	return nil
}

// DelimiterFrameDecoder reassembles frames split across reads. It keeps per-connection
// state, declare it with pipeline.PerConnection.
type DelimiterFrameDecoder struct {
	conf       DelimiterConfig
	stats      *FrameStats
	buff       bytes.Buffer
	discarding bool
	tooLong    int
}

func NewDelimiterFrameDecoder(c DelimiterConfig) (*DelimiterFrameDecoder, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	delims := make([][]byte, 0, len(c.Delimiters))
	for _, d := range c.Delimiters {
		delims = append(delims, append([]byte(nil), d...))
	}
	c.Delimiters = delims
	return &DelimiterFrameDecoder{conf: c, stats: c.Stats}, nil
}

// Buffered returns the count of bytes waiting for a delimiter.
func (v *DelimiterFrameDecoder) Buffered() int {
	return v.buff.Len()
}

func (v *DelimiterFrameDecoder) HandleRead(ctx pipeline.Context, msg any) error {
	b, ok := msg.([]byte)
	if !ok {
		return errors.Wrapf(ErrUnexpectedType, "want []byte, got %T", msg)
	}
	v.buff.Write(b)

	// an oversized frame is reported after the frames that follow it in the buffer were passed on
	var tooLong error

	for {
		data := v.buff.Bytes()
		idx, dlen := v.indexOf(data)

		if idx < 0 {
			if v.overflow(len(data)) && v.conf.FailFast {
				tooLong = errors.Wrapf(ErrFrameTooLong, "exceeds %d bytes", v.conf.MaxFrameLength)
			}
			break
		}

		if v.discarding {
			v.discarding = false
			size := v.tooLong + idx
			v.tooLong = 0
			v.buff.Next(idx + dlen)
			v.stats.addTooLong()
			if !v.conf.FailFast {
				tooLong = errors.Wrapf(ErrFrameTooLong, "%d bytes, limit %d", size, v.conf.MaxFrameLength)
			}
			continue
		}

		if v.conf.MaxFrameLength > 0 && idx > v.conf.MaxFrameLength {
			v.buff.Next(idx + dlen)
			v.stats.addTooLong()
			tooLong = errors.Wrapf(ErrFrameTooLong, "%d bytes, limit %d", idx, v.conf.MaxFrameLength)
			continue
		}

		size := idx
		if !v.conf.StripDelimiter {
			size += dlen
		}
		frame := make([]byte, size)
		copy(frame, data[:size])
		v.buff.Next(idx + dlen)
		v.stats.addFrame()

		if err := ctx.FireRead(frame); err != nil {
			return err
		}
	}

	return pipeline.Recoverable(tooLong)
}

// overflow drops the buffered bytes once they can not form a valid frame any more.
// It reports true when discarding has just started.
func (v *DelimiterFrameDecoder) overflow(n int) bool {
	if v.discarding {
		v.tooLong += n
		v.buff.Reset()
		return false
	}
	if v.conf.MaxFrameLength > 0 && n > v.conf.MaxFrameLength {
		v.tooLong = n
		v.discarding = true
		v.buff.Reset()
		return true
	}
	return false
}

func (v *DelimiterFrameDecoder) indexOf(data []byte) (int, int) {
	idx, dlen := -1, 0
	for _, d := range v.conf.Delimiters {
		if i := bytes.Index(data, d); i >= 0 && (idx < 0 || i < idx) {
			idx, dlen = i, len(d)
		}
	}
	return idx, dlen
}
