/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"go.osspkg.com/netpipe/client"
	"go.osspkg.com/netpipe/codec"
	"go.osspkg.com/netpipe/handlers"
)

func sendCmd() *cobra.Command {
	var (
		conf      client.Config
		delimiter string
		wait      time.Duration
		timeout   time.Duration
		reports   bool
	)

	cmd := &cobra.Command{
		Use:   "send [flags] message...",
		Short: "Send delimited messages and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := client.New(conf)
			if err != nil {
				return err
			}
			defer cli.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			payload := strings.Join(args, delimiter) + delimiter
			reply, err := cli.Exchange(ctx, []byte(payload), wait)
			if err != nil {
				return err
			}

			return printReply(cmd.OutOrStdout(), reply, reports)
		},
	}

	cmd.Flags().StringVarP(&conf.Address, "address", "a", "127.0.0.1:8080", "server address")
	cmd.Flags().StringVarP(&conf.Network, "network", "n", "tcp", "tcp or unix")
	cmd.Flags().StringVarP(&delimiter, "delimiter", "d", "|", "appended to every message")
	cmd.Flags().DurationVar(&wait, "wait", 300*time.Millisecond, "stop reading after the server is silent this long")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "deadline of the whole exchange")
	cmd.Flags().BoolVar(&reports, "reports", false, "decode the reply as reporter objects")

	return cmd
}

func printReply(w io.Writer, reply []byte, reports bool) error {
	if !reports {
		_, err := fmt.Fprintln(w, string(reply))
		return err
	}

	list, err := codec.DecodeObjects[handlers.Report](reply)
	if err != nil {
		return fmt.Errorf("decode reports: %w", err)
	}

	enc := json.NewEncoder(w)
	for _, r := range list {
		if err = enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
