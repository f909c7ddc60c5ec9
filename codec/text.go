/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package codec

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"go.osspkg.com/netpipe/pipeline"
)

const DefaultCharset = "utf-8"

type TextConfig struct {
	Charset string `yaml:"charset,omitempty"`
}

func (c TextConfig) Validate() error {
	_, err := c.encoding()
	return err
}

func (c TextConfig) encoding() (encoding.Encoding, error) {
	name := c.Charset
	if len(name) == 0 {
		name = DefaultCharset
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("charset %q: %w", name, err)
	}
	return enc, nil
}

// TextDecoder turns []byte frames into strings. It holds no connection state and can be shared.
type TextDecoder struct {
	enc encoding.Encoding
}

func NewTextDecoder(c TextConfig) (*TextDecoder, error) {
	enc, err := c.encoding()
	if err != nil {
		return nil, err
	}
	return &TextDecoder{enc: enc}, nil
}

func (v *TextDecoder) HandleRead(ctx pipeline.Context, msg any) error {
	b, ok := msg.([]byte)
	if !ok {
		return ctx.FireRead(msg)
	}
	s, err := v.enc.NewDecoder().Bytes(b)
	if err != nil {
		return fmt.Errorf("decode text: %w", err)
	}
	return ctx.FireRead(string(s))
}

// TextEncoder turns outbound strings into []byte. It holds no connection state and can be shared.
type TextEncoder struct {
	enc encoding.Encoding
}

func NewTextEncoder(c TextConfig) (*TextEncoder, error) {
	enc, err := c.encoding()
	if err != nil {
		return nil, err
	}
	return &TextEncoder{enc: enc}, nil
}

func (v *TextEncoder) HandleWrite(ctx pipeline.Context, msg any) error {
	s, ok := msg.(string)
	if !ok {
		return ctx.Write(msg)
	}
	b, err := v.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return fmt.Errorf("encode text: %w", err)
	}
	return ctx.Write(b)
}
