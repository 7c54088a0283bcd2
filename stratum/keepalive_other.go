// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !linux

package stratum

import (
	"net"
	"time"
)

// enableKeepalive falls back to the portable net.TCPConn keepalive knobs
// on platforms where the fine-grained TCP_KEEPIDLE/INTVL/CNT socket
// options aren't available through golang.org/x/sys/unix.
func enableKeepalive(conn *net.TCPConn) {
	_ = conn.SetKeepAlive(true)
	_ = conn.SetKeepAlivePeriod(30 * time.Second)
}
