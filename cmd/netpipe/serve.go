/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.osspkg.com/errors"
	"go.osspkg.com/logx"
	"go.osspkg.com/xc"
	"golang.org/x/sync/errgroup"

	"go.osspkg.com/netpipe/errs"
	"go.osspkg.com/netpipe/manage"
	"go.osspkg.com/netpipe/server"
)

func serveCmd() *cobra.Command {
	var (
		path      string
		stopAfter time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server described by a yaml config",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig(path)
			if err != nil {
				return err
			}

			sig := xc.New()
			defer sig.Close()

			return serve(sig.Context(), conf, stopAfter)
		},
	}

	cmd.Flags().StringVarP(&path, "config", "c", "netpipe.yaml", "path to the config file")
	cmd.Flags().DurationVar(&stopAfter, "stop-after", 0, "stop the server after this delay, 0 runs until a signal")

	return cmd
}

func serve(ctx context.Context, conf *FileConfig, stopAfter time.Duration) error {
	descs, opts, err := conf.descriptors()
	if err != nil {
		return err
	}

	reg := manage.NewRegistry()
	srv, err := server.New(conf.Server, descs, append(opts, server.WithRegistrar(reg))...)
	if err != nil {
		return err
	}

	if err = srv.Start(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if len(conf.Manage) > 0 {
		g.Go(func() error {
			return manage.Serve(ctx, conf.Manage, reg)
		})
	}

	g.Go(func() error {
		var timer <-chan time.Time
		if stopAfter > 0 {
			t := time.NewTimer(stopAfter)
			defer t.Stop()
			timer = t.C
		}

		select {
		case <-ctx.Done():
		case <-timer:
			logx.Info("Serve: stop timer fired", "after", stopAfter)
		case <-srv.Done():
			// stopped by the management api or by a listener failure,
			// the api may start it again
			if len(conf.Manage) > 0 {
				<-ctx.Done()
			}
		}

		err := srv.Stop(context.Background())
		cancel()
		if errors.Is(err, errs.ErrShutdownTimeout) {
			return nil
		}
		return err
	})

	return g.Wait()
}
