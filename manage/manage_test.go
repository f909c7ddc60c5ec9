/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package manage_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.osspkg.com/casecheck"
	"go.osspkg.com/errors"

	"go.osspkg.com/netpipe/handlers"
	"go.osspkg.com/netpipe/manage"
	"go.osspkg.com/netpipe/pipeline"
	"go.osspkg.com/netpipe/server"
)

func newServer(t *testing.T, reg *manage.Registry, name string, opts ...server.Option) *server.Server {
	t.Helper()

	srv, err := server.New(server.Config{Name: name, Address: "127.0.0.1:0"},
		[]pipeline.Descriptor{pipeline.Shared("echo", handlers.Echo{})},
		append(opts, server.WithRegistrar(reg))...)
	casecheck.NoError(t, err)
	return srv
}

func do(t *testing.T, h http.Handler, method, path string) (int, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	body, err := io.ReadAll(rec.Body)
	casecheck.NoError(t, err)
	return rec.Code, string(body)
}

func TestUnit_RegistryDuplicate(t *testing.T) {
	reg := manage.NewRegistry()
	newServer(t, reg, "a")

	_, err := server.New(server.Config{Name: "a"}, nil, server.WithRegistrar(reg))
	casecheck.Error(t, err)
	casecheck.True(t, errors.Is(err, manage.ErrDuplicate))

	_, err = reg.Get("b")
	casecheck.True(t, errors.Is(err, manage.ErrNotFound))

	reg.Unregister("a")
	_, err = reg.Get("a")
	casecheck.True(t, errors.Is(err, manage.ErrNotFound))
	casecheck.Equal(t, 0, len(reg.List()))
}

func TestUnit_HandlerLifecycle(t *testing.T) {
	reg := manage.NewRegistry()
	frames := new(atomic.Uint64)
	frames.Add(7)
	srv := newServer(t, reg, "echo", server.WithCounter("frame.frames", frames))
	newServer(t, reg, "alpha")
	h := manage.Handler(reg)

	code, body := do(t, h, http.MethodGet, "/servers")
	casecheck.Equal(t, http.StatusOK, code)
	var list []server.Snapshot
	casecheck.NoError(t, json.Unmarshal([]byte(body), &list))
	casecheck.Equal(t, 2, len(list))
	casecheck.Equal(t, "alpha", list[0].Name)
	casecheck.Equal(t, "stopped", list[1].State)

	code, _ = do(t, h, http.MethodGet, "/servers/missing")
	casecheck.Equal(t, http.StatusNotFound, code)

	code, body = do(t, h, http.MethodPost, "/servers/echo/start")
	casecheck.Equal(t, http.StatusOK, code)
	var snap server.Snapshot
	casecheck.NoError(t, json.Unmarshal([]byte(body), &snap))
	casecheck.Equal(t, "running", snap.State)
	casecheck.Equal(t, []string{"echo"}, snap.Pipeline)
	casecheck.Equal(t, server.Running, srv.State())

	code, _ = do(t, h, http.MethodPost, "/servers/echo/start")
	casecheck.Equal(t, http.StatusConflict, code)

	code, body = do(t, h, http.MethodGet, "/metrics")
	casecheck.Equal(t, http.StatusOK, code)
	casecheck.True(t, strings.Contains(body, `netpipe_server_state{server="echo"} 2`))
	casecheck.True(t, strings.Contains(body, `netpipe_connections_accepted_total{server="alpha"} 0`))
	casecheck.True(t, strings.Contains(body, `netpipe_stage_counter_total{counter="frame.frames",server="echo"} 7`))

	code, body = do(t, h, http.MethodPost, "/servers/echo/stop")
	casecheck.Equal(t, http.StatusOK, code)
	casecheck.True(t, strings.Contains(body, `"state":"stopped"`))
	casecheck.Equal(t, server.Stopped, srv.State())

	casecheck.NoError(t, srv.Stop(context.TODO()))
}
