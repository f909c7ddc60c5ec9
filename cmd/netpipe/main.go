/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.osspkg.com/logx"
)

func main() {
	var debug bool

	root := &cobra.Command{
		Use:           "netpipe",
		Short:         "TCP server assembled from a pipeline of framing, codec and business stages",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if debug {
				logx.SetLevel(logx.LevelDebug)
			}
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logs")

	root.AddCommand(serveCmd(), sendCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
