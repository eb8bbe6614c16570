/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package socket

import (
	"errors"
	"net"
	"strings"
)

// ErrInvalidAddress is returned by SplitHostService for a malformed address
// string; address parsing beyond this is an external concern.
var ErrInvalidAddress = errors.New("socket: invalid address")

// SplitHostService separates a numeric "host:service" pair, stripping
// brackets around an IPv6 literal (e.g. "[::1]:9090" -> "::1", "9090").
// Both host and service are expected to already be numeric; DNS resolution
// and service-name lookup are out of scope here.
func SplitHostService(addr string) (host, service string, err error) {
	if addr == "" {
		return "", "", ErrInvalidAddress
	}
	if strings.HasPrefix(addr, "[") {
		end := strings.IndexByte(addr, ']')
		if end < 0 {
			return "", "", ErrInvalidAddress
		}
		host = addr[1:end]
		rest := addr[end+1:]
		if !strings.HasPrefix(rest, ":") {
			return "", "", ErrInvalidAddress
		}
		return host, rest[1:], nil
	}
	h, s, err := net.SplitHostPort(addr)
	if err != nil {
		return "", "", ErrInvalidAddress
	}
	return h, s, nil
}

// IsLoopbackAddr reports whether addr's IP matches a loopback address,
// either trivially (127.0.0.0/8, ::1) or because it is bound to an
// interface flagged loopback.
func IsLoopbackAddr(addr net.Addr) bool {
	ip := ipOf(addr)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagLoopback == 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipOf(a).Equal(ip) {
				return true
			}
		}
	}
	return false
}

func ipOf(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP
	case *net.IPNet:
		return a.IP
	case *net.IPAddr:
		return a.IP
	default:
		return nil
	}
}
