/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package main

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"go.osspkg.com/netpipe/codec"
	"go.osspkg.com/netpipe/errs"
	"go.osspkg.com/netpipe/handlers"
	"go.osspkg.com/netpipe/pipeline"
	"go.osspkg.com/netpipe/server"
)

const (
	kindDelimiterFrame = "delimiter_frame"
	kindTextDecoder    = "text_decoder"
	kindTextEncoder    = "text_encoder"
	kindObjectEncoder  = "object_encoder"
	kindUppercase      = "uppercase"
	kindEcho           = "echo"
	kindReporter       = "reporter"
)

type (
	FileConfig struct {
		Server   server.Config `yaml:"server"`
		Pipeline []StageConfig `yaml:"pipeline"`
		// Manage is the listen address of the management api, empty disables it.
		Manage string `yaml:"manage,omitempty"`
	}

	StageConfig struct {
		Kind string `yaml:"kind"`
		Name string `yaml:"name,omitempty"`

		Delimiters     []string `yaml:"delimiters,omitempty"`
		MaxFrameLength int      `yaml:"max_frame_length,omitempty"`
		StripDelimiter bool     `yaml:"strip_delimiter,omitempty"`
		FailFast       bool     `yaml:"fail_fast,omitempty"`

		Charset      string `yaml:"charset,omitempty"`
		LengthPrefix bool   `yaml:"length_prefix,omitempty"`
	}
)

func loadConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	conf := &FileConfig{}
	if err = yaml.Unmarshal(b, conf); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return conf, nil
}

// descriptors turns the declared stages into pipeline descriptors, reporters share one counter.
// The returned options publish the stage counters on the server.
func (c *FileConfig) descriptors() ([]pipeline.Descriptor, []server.Option, error) {
	total := new(atomic.Uint64)
	out := make([]pipeline.Descriptor, 0, len(c.Pipeline))
	opts := make([]server.Option, 0, 2)

	for i, st := range c.Pipeline {
		name := st.Name
		if len(name) == 0 {
			name = st.Kind
		}

		switch st.Kind {
		case kindDelimiterFrame:
			delims := make([][]byte, 0, len(st.Delimiters))
			for _, d := range st.Delimiters {
				delims = append(delims, []byte(d))
			}
			stats := &codec.FrameStats{}
			out = append(out, pipeline.PerConnection(name, codec.NewDelimiterFrameDecoder, codec.DelimiterConfig{
				Delimiters:     delims,
				MaxFrameLength: st.MaxFrameLength,
				StripDelimiter: st.StripDelimiter,
				FailFast:       st.FailFast,
				Stats:          stats,
			}))
			opts = append(opts,
				server.WithCounter(name+".frames", &stats.Frames),
				server.WithCounter(name+".too_long", &stats.TooLong))

		case kindTextDecoder:
			h, err := codec.NewTextDecoder(codec.TextConfig{Charset: st.Charset})
			if err != nil {
				return nil, nil, &errs.ConfigurationError{Field: fmt.Sprintf("pipeline[%d].charset", i), Reason: "invalid", Err: err}
			}
			out = append(out, pipeline.Shared(name, h))

		case kindTextEncoder:
			h, err := codec.NewTextEncoder(codec.TextConfig{Charset: st.Charset})
			if err != nil {
				return nil, nil, &errs.ConfigurationError{Field: fmt.Sprintf("pipeline[%d].charset", i), Reason: "invalid", Err: err}
			}
			out = append(out, pipeline.Shared(name, h))

		case kindObjectEncoder:
			out = append(out, pipeline.PerConnection(name, codec.NewObjectEncoder, codec.ObjectConfig{LengthPrefix: st.LengthPrefix}))

		case kindUppercase:
			out = append(out, pipeline.Shared(name, handlers.Uppercase{}))

		case kindEcho:
			out = append(out, pipeline.Shared(name, handlers.Echo{}))

		case kindReporter:
			out = append(out, pipeline.PerConnection(name, handlers.NewReporter, handlers.Counter{Total: total}))
			opts = append(opts, server.WithCounter(name+".total", total))

		default:
			return nil, nil, errs.Configuration(fmt.Sprintf("pipeline[%d].kind", i), "unknown stage kind %q", st.Kind)
		}
	}

	return out, opts, nil
}
