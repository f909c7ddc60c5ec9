/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package address

import (
	"net"
	"strconv"
	"strings"

	"go.osspkg.com/errors"
)

const (
	DefaultHost = "0.0.0.0"
	DefaultPort = "8080"
)

var (
	ErrInvalidAddress = errors.New("invalid listen address")
)

// Join builds a listen address from a host and a port, port 0 asks the kernel for a free one.
func Join(host string, port int) string {
	if len(host) == 0 {
		host = DefaultHost
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port))
}

// Normalize turns a user supplied tcp listen address into host:port form.
// An empty host becomes 0.0.0.0, a missing port becomes 8080.
func Normalize(address string) (string, error) {
	var host, port string

	switch {
	case len(address) == 0:
		host = DefaultHost

	case IsValidIP(strings.Trim(address, "[]")):
		host = strings.Trim(address, "[]")

	default:
		h, p, err := net.SplitHostPort(address)
		if err != nil {
			if strings.Count(address, ":") > 0 && !strings.HasSuffix(address, ":") {
				return "", errors.Wrapf(ErrInvalidAddress, "%q: %v", address, err)
			}
			h = strings.TrimSuffix(address, ":")
		}
		host, port = h, p
	}

	if len(host) == 0 {
		host = DefaultHost
	}
	if len(port) == 0 {
		port = DefaultPort
	}

	v, err := strconv.Atoi(port)
	if err != nil || v < 0 || v > 65535 {
		return "", errors.Wrapf(ErrInvalidAddress, "port %q", port)
	}

	return net.JoinHostPort(strings.Trim(host, "[]"), port), nil
}

func IsValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
