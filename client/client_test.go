/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package client_test

import (
	"context"
	"io"
	"testing"
	"time"

	"go.osspkg.com/casecheck"

	"go.osspkg.com/netpipe/client"
	"go.osspkg.com/netpipe/codec"
	"go.osspkg.com/netpipe/handlers"
	"go.osspkg.com/netpipe/pipeline"
	"go.osspkg.com/netpipe/server"
)

func startUpper(t *testing.T) *server.Server {
	t.Helper()

	text, err := codec.NewTextDecoder(codec.TextConfig{})
	casecheck.NoError(t, err)
	enc, err := codec.NewTextEncoder(codec.TextConfig{})
	casecheck.NoError(t, err)

	srv, err := server.New(server.Config{Address: "127.0.0.1:0"}, []pipeline.Descriptor{
		pipeline.PerConnection("frame", codec.NewDelimiterFrameDecoder, codec.DelimiterConfig{
			Delimiters:     [][]byte{[]byte("\n")},
			StripDelimiter: true,
		}),
		pipeline.Shared("text_decoder", text),
		pipeline.Shared("text_encoder", enc),
		pipeline.Shared("upper", handlers.Uppercase{}),
	})
	casecheck.NoError(t, err)
	casecheck.NoError(t, srv.Start(context.TODO()))
	return srv
}

func TestUnit_ClientExchange(t *testing.T) {
	srv := startUpper(t)
	defer srv.Stop(context.TODO()) //nolint:errcheck

	cli, err := client.New(client.Config{
		Address:     srv.Addr().String(),
		Options:     map[string]any{"connectTimeoutMillis": 1000, "tcpNoDelay": true},
		IdleTimeout: time.Minute,
	})
	casecheck.NoError(t, err)
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.TODO(), 5*time.Second)
	defer cancel()

	out, err := cli.Exchange(ctx, []byte("ab\ncd\n"), 200*time.Millisecond)
	casecheck.NoError(t, err)
	casecheck.Equal(t, "ABCD", string(out))

	out, err = cli.Exchange(ctx, []byte("reuse\n"), 200*time.Millisecond)
	casecheck.NoError(t, err)
	casecheck.Equal(t, "REUSE", string(out))

	// an exchange ends on the read deadline, its connection is not reused
	casecheck.Equal(t, uint64(2), srv.Stats().Accepted)
}

func TestUnit_ClientCallReuse(t *testing.T) {
	srv := startUpper(t)
	defer srv.Stop(context.TODO()) //nolint:errcheck

	cli, err := client.New(client.Config{Address: srv.Addr().String(), IdleTimeout: time.Minute})
	casecheck.NoError(t, err)
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.TODO(), 5*time.Second)
	defer cancel()

	call := func(msg, want string) {
		err := cli.Call(ctx, func(_ context.Context, w io.Writer, r io.Reader) error {
			if _, err := w.Write([]byte(msg + "\n")); err != nil {
				return err
			}
			buf := make([]byte, len(want))
			if _, err := io.ReadFull(r, buf); err != nil {
				return err
			}
			casecheck.Equal(t, want, string(buf))
			return nil
		})
		casecheck.NoError(t, err)
	}

	call("one", "ONE")
	call("two", "TWO")

	// a reply read in full leaves the connection reusable
	casecheck.Equal(t, uint64(1), srv.Stats().Accepted)
}

func TestUnit_ClientCall(t *testing.T) {
	srv := startUpper(t)
	defer srv.Stop(context.TODO()) //nolint:errcheck

	cli, err := client.New(client.Config{Network: "tcp", Address: srv.Addr().String()})
	casecheck.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.TODO(), 5*time.Second)
	defer cancel()

	var got string
	err = cli.Call(ctx, func(_ context.Context, w io.Writer, r io.Reader) error {
		if _, err := w.Write([]byte("call\n")); err != nil {
			return err
		}
		buf := make([]byte, 4)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		got = string(buf)
		return nil
	})
	casecheck.NoError(t, err)
	casecheck.Equal(t, "CALL", got)
}

func TestUnit_ClientConfig(t *testing.T) {
	_, err := client.New(client.Config{Network: "udp", Address: "127.0.0.1:1"})
	casecheck.Error(t, err)

	_, err = client.New(client.Config{Address: "127.0.0.1:1", Options: map[string]any{"bogus": 1}})
	casecheck.Error(t, err)
}
