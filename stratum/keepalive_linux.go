// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build linux

package stratum

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// enableKeepalive turns on TCP keepalive and tunes the idle/interval
// timers via raw socket options, beyond what net.TCPConn.SetKeepAlive
// alone exposes. Best-effort: a failure here is logged and otherwise
// ignored, matching SPEC_FULL.md §4.3's "best-effort liveness only".
func enableKeepalive(conn *net.TCPConn) {
	if err := conn.SetKeepAlive(true); err != nil {
		log.Debugf("stratum: enable keepalive: %v", err)
		return
	}
	_ = conn.SetKeepAlivePeriod(30 * time.Second)

	raw, err := conn.SyscallConn()
	if err != nil {
		log.Debugf("stratum: keepalive syscall conn: %v", err)
		return
	}
	_ = raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, 30)
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, 10)
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, 3)
	})
}
