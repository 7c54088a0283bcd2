// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stratum

import (
	"io"
	"net"
	"strings"
	"time"

	"github.com/btcsuite/go-socks/socks"
	"github.com/btcsuite/websocket"
)

// wireConn is the minimal duplex, deadline-aware connection surface the
// client needs. A plain *net.TCPConn satisfies it directly; wsConn adapts
// a websocket connection to the same shape so Client.Process doesn't care
// which transport it is reading from.
type wireConn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// ProxyConfig optionally routes the pool connection through a SOCKS5
// proxy, the way btcd routes RPC dials through Tor.
type ProxyConfig struct {
	Addr     string
	Username string
	Password string
}

// dial opens a transport connection to addr. addr may be a bare
// "host:port" (plain TCP) or a "ws://"/"wss://" URL (websocket). When proxy
// is non-nil, plain TCP dials are routed through it; websocket dials
// ignore proxy, matching the reference client's "plaintext TCP assumed"
// scope for the proxy path.
func dial(addr string, proxy *ProxyConfig) (wireConn, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return dialWebsocket(addr)
	}
	if proxy != nil {
		p := &socks.Proxy{Addr: proxy.Addr, Username: proxy.Username, Password: proxy.Password}
		conn, err := p.Dial("tcp", addr)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		enableKeepalive(tcp)
	}
	return conn, nil
}

func dialWebsocket(addr string) (wireConn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

// wsConn adapts a *websocket.Conn's message framing to the byte-stream
// io.ReadWriteCloser the line scanner expects, buffering the tail of a
// partially-consumed text message between Read calls.
type wsConn struct {
	conn *websocket.Conn
	buf  []byte
}

func (w *wsConn) Read(p []byte) (int, error) {
	for len(w.buf) == 0 {
		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		w.buf = msg
	}
	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	return n, nil
}

func (w *wsConn) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

func (w *wsConn) SetReadDeadline(t time.Time) error {
	return w.conn.SetReadDeadline(t)
}
