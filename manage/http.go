/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package manage

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.osspkg.com/errors"
	"go.osspkg.com/logx"

	"go.osspkg.com/netpipe/errs"
	"go.osspkg.com/netpipe/server"
)

// Handler serves the management api:
//
//	GET  /servers
//	GET  /servers/{name}
//	POST /servers/{name}/start
//	POST /servers/{name}/stop
//	GET  /metrics
func Handler(reg *Registry) http.Handler {
	metrics := prometheus.NewRegistry()
	metrics.MustRegister(NewCollector(reg))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/servers", func(w http.ResponseWriter, _ *http.Request) {
		list := reg.List()
		out := make([]server.Snapshot, 0, len(list))
		for _, s := range list {
			out = append(out, s.Snapshot())
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Route("/servers/{name}", func(r chi.Router) {
		r.Get("/", withServer(reg, func(w http.ResponseWriter, _ *http.Request, s *server.Server) {
			writeJSON(w, http.StatusOK, s.Snapshot())
		}))
		r.Post("/start", withServer(reg, func(w http.ResponseWriter, req *http.Request, s *server.Server) {
			if err := s.Start(req.Context()); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, s.Snapshot())
		}))
		r.Post("/stop", withServer(reg, func(w http.ResponseWriter, req *http.Request, s *server.Server) {
			if err := s.Stop(req.Context()); err != nil && !errors.Is(err, errs.ErrShutdownTimeout) {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, s.Snapshot())
		}))
	})

	r.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))

	return r
}

func withServer(reg *Registry, fn func(http.ResponseWriter, *http.Request, *server.Server)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := reg.Get(chi.URLParam(r, "name"))
		if err != nil {
			writeError(w, err)
			return
		}
		fn(w, r, s)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, errs.ErrAlreadyRunning):
		code = http.StatusConflict
	case errors.Is(err, errs.ErrBind):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Warn("Manage: write response", "err", err)
	}
}

// Serve runs the management api on address until ctx is done.
func Serve(ctx context.Context, address string, reg *Registry) error {
	srv := &http.Server{
		Addr:              address,
		Handler:           Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errC := make(chan error, 1)
	go func() {
		logx.Info("Manage: listen", "address", address)
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errC; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
