/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package internal

import (
	"go.osspkg.com/ioutils/pool"
)

const DefaultChunkSize = 4096

var ChunkPool = pool.New[*Bytes](func() *Bytes {
	return &Bytes{Slice: make([]byte, DefaultChunkSize)}
})

type Bytes struct {
	Slice []byte
}

func (*Bytes) Reset() {}

// Grow makes sure the chunk can hold size bytes and returns the usable window.
func (b *Bytes) Grow(size int) []byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if cap(b.Slice) < size {
		b.Slice = make([]byte, size)
	}
	return b.Slice[:size]
}
