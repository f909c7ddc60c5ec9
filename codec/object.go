/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"go.osspkg.com/netpipe/pipeline"
)

type ObjectConfig struct {
	// LengthPrefix puts a 4 byte big endian length in front of every encoded object.
	LengthPrefix bool `yaml:"length_prefix"`
}

// ObjectEncoder serializes outbound values that are neither []byte nor string to CBOR.
// The stream encoder and its buffer belong to one connection, declare it with pipeline.PerConnection.
type ObjectEncoder struct {
	conf ObjectConfig
	buff bytes.Buffer
	enc  *cbor.Encoder
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func NewObjectEncoder(c ObjectConfig) (*ObjectEncoder, error) {
	v := &ObjectEncoder{conf: c}
	v.enc = encMode.NewEncoder(&v.buff)
	return v, nil
}

func (v *ObjectEncoder) HandleWrite(ctx pipeline.Context, msg any) error {
	switch msg.(type) {
	case []byte, string:
		return ctx.Write(msg)
	}

	v.buff.Reset()
	if v.conf.LengthPrefix {
		v.buff.Write([]byte{0, 0, 0, 0})
	}
	if err := v.enc.Encode(msg); err != nil {
		return fmt.Errorf("encode object %T: %w", msg, err)
	}

	out := make([]byte, v.buff.Len())
	copy(out, v.buff.Bytes())
	if v.conf.LengthPrefix {
		binary.BigEndian.PutUint32(out[:4], uint32(len(out)-4))
	}
	return ctx.Write(out)
}

// DecodeObject is the client side counterpart of ObjectEncoder without length prefix.
func DecodeObject(b []byte, v any) error {
	return cbor.Unmarshal(b, v)
}

// DecodeObjects reads back-to-back objects written without length prefix.
func DecodeObjects[T any](b []byte) ([]T, error) {
	dec := cbor.NewDecoder(bytes.NewReader(b))
	out := make([]T, 0, 1)
	for {
		var v T
		if err := dec.Decode(&v); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
		out = append(out, v)
	}
}
