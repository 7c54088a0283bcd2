// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package stratum implements a line-delimited JSON-RPC Stratum client for
// pool mining: connect, subscribe/authorize, receive job notifications,
// and submit shares. It is driven by a single cooperative loop alongside
// the device drivers in package coordinator; Process is the only call
// that may block, and only for up to 100ms.
package stratum

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/decred/dcrd/lru"

	"github.com/adequatesystems/peach-miner/trailer"
)

// State is a Stratum connection's position in the session state machine.
type State int

const (
	Disconnected State = iota
	Connecting
	Subscribing
	Authorizing
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Subscribing:
		return "SUBSCRIBING"
	case Authorizing:
		return "AUTHORIZING"
	case Connected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// DefaultDifficulty is the pool difficulty assumed before any
// mining.set_difficulty notification arrives.
const DefaultDifficulty = 28

// recvBufSize is the line-buffer capacity, matching STRATUM_BUF_SIZE.
const recvBufSize = 4096

// overflowGuard is how close to recvBufSize the buffer may get, with no
// newline found, before it is defensively cleared.
const overflowGuard = 100

// pollTimeout bounds the one blocking call Process makes per invocation.
const pollTimeout = 100 * time.Millisecond

// shareDedupeSize bounds the recently-submitted (job id, nonce) cache.
const shareDedupeSize = 64

// Option configures a Client at construction time.
type Option func(*Client)

// WithProxy routes the TCP dial through a SOCKS5 proxy.
func WithProxy(p ProxyConfig) Option {
	return func(c *Client) { c.proxy = &p }
}

// WithSubscribe forces the SUBSCRIBING branch of the state machine to run
// before authorize, for pool variants that require an explicit
// mining.subscribe handshake. Most pools this client targets are
// permissive enough to skip it.
func WithSubscribe() Option {
	return func(c *Client) { c.useSubscribe = true }
}

// Client is a Stratum session. It is not safe for concurrent use; the
// cooperative loop that calls Process is the same loop that calls
// HasJob/GetJob/Submit.
type Client struct {
	host   string
	port   int
	wallet string
	worker string
	proxy  *ProxyConfig

	useSubscribe bool

	conn  wireConn
	state State
	msgID int

	recvBuf []byte

	pending Job
	current Job

	difficulty byte

	acceptedShares uint64
	rejectedShares uint64

	submitted lru.Cache[string]
}

// NewClient constructs a disconnected Client. Matches stratum_init: zero
// state, default pool difficulty 28, message-id counter starting at 1.
func NewClient(host string, port int, wallet, worker string, opts ...Option) *Client {
	c := &Client{
		host:       host,
		port:       port,
		wallet:     wallet,
		worker:     worker,
		state:      Disconnected,
		msgID:      1,
		difficulty: DefaultDifficulty,
		recvBuf:    make([]byte, 0, recvBufSize),
		submitted:  *lru.NewCache[string](shareDedupeSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientWithConn constructs a Client already bound to an established
// connection, skipping Connect's dial step and leaving the state machine
// at DISCONNECTED. It exists for callers that dial their own transport
// (e.g. a custom proxy chain) and for tests that drive the protocol over
// an in-memory pipe.
func NewClientWithConn(conn wireConn, wallet, worker string) *Client {
	c := NewClient("", 0, wallet, worker)
	c.conn = conn
	return c
}

// Connect dials the pool and begins the authorize handshake. When
// WithSubscribe was passed, it sends mining.subscribe first and waits for
// a response before authorizing; otherwise it authorizes immediately,
// matching the permissive pool this client was built against.
func (c *Client) Connect() error {
	c.state = Connecting
	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))
	if strings.HasPrefix(c.host, "ws://") || strings.HasPrefix(c.host, "wss://") {
		// A websocket URL goes to dial unbracketed, with the port appended.
		addr = c.host + ":" + strconv.Itoa(c.port)
	}
	log.Debugf("stratum: connecting to %s", addr)

	conn, err := dial(addr, c.proxy)
	if err != nil {
		c.state = Disconnected
		return &NetworkError{Op: "connect", Err: err}
	}
	c.conn = conn
	c.recvBuf = c.recvBuf[:0]

	if c.useSubscribe {
		c.state = Subscribing
		if err := c.send("mining.subscribe", `[]`); err != nil {
			c.Disconnect()
			return err
		}
		log.Debugf("stratum: sent subscribe request")
		return nil
	}

	return c.authorize()
}

// Authorize sends a mining.authorize request on an already-established
// connection and advances the state machine to AUTHORIZING. Connect calls
// this automatically after a successful dial; it is exported separately
// for callers using NewClientWithConn with a connection that skipped the
// subscribe branch.
func (c *Client) Authorize() error {
	return c.authorize()
}

func (c *Client) authorize() error {
	params := fmt.Sprintf(`["%s.%s","x"]`, c.wallet, c.worker)
	if err := c.send("mining.authorize", params); err != nil {
		c.Disconnect()
		return err
	}
	c.state = Authorizing
	log.Debugf("stratum: sent authorize request, waiting for response")
	return nil
}

// Disconnect closes the socket and resets session state to DISCONNECTED.
func (c *Client) Disconnect() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = Disconnected
	c.recvBuf = c.recvBuf[:0]
	log.Debugf("stratum: disconnected")
}

// IsConnected is true iff the socket is open and the state is at least
// SUBSCRIBING (i.e. the authorize/subscribe handshake is underway or
// complete).
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.state >= Subscribing
}

// ConnState returns the current connection state.
func (c *Client) ConnState() State { return c.state }

// AcceptedShares and RejectedShares return running totals for metrics.
func (c *Client) AcceptedShares() uint64 { return c.acceptedShares }
func (c *Client) RejectedShares() uint64 { return c.rejectedShares }

// Difficulty returns the pool-imposed difficulty floor from the most
// recent mining.set_difficulty, or DefaultDifficulty if none has arrived.
func (c *Client) Difficulty() byte { return c.difficulty }

func (c *Client) send(method, params string) error {
	id := c.msgID
	c.msgID++
	msg := fmt.Sprintf(`{"id":%d,"method":"%s","params":%s}`+"\n", id, method, params)
	if _, err := c.conn.Write([]byte(msg)); err != nil {
		return &NetworkError{Op: "send " + method, Err: err}
	}
	return nil
}

// Process polls the socket for up to 100ms, appends any data read to the
// line buffer, and handles every complete newline-terminated message in
// arrival order. It is the sole blocking call in the client and the sole
// cooperative sleep point SPEC_FULL.md §5 permits.
func (c *Client) Process() error {
	if c.conn == nil || c.state == Disconnected {
		return nil
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(pollTimeout)); err != nil {
		c.Disconnect()
		return &NetworkError{Op: "set deadline", Err: err}
	}

	buf := make([]byte, recvBufSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return nil
		}
		log.Errorf("stratum: connection closed: %v", err)
		c.Disconnect()
		return &NetworkError{Op: "recv", Err: err}
	}
	if n == 0 {
		return nil
	}

	c.recvBuf = append(c.recvBuf, buf[:n]...)

	for {
		idx := indexByte(c.recvBuf, '\n')
		if idx < 0 {
			break
		}
		line := string(c.recvBuf[:idx])
		c.recvBuf = c.recvBuf[idx+1:]

		if err := c.handleMessage(line); err != nil {
			var protoErr *ProtocolError
			if errors.As(err, &protoErr) {
				log.Warnf("stratum: dropping message: %v", err)
				continue
			}
			log.Warnf("stratum: %v", err)
			c.Disconnect()
			return err
		}
	}

	if len(c.recvBuf) >= recvBufSize-overflowGuard {
		log.Warnf("stratum: receive buffer overflow, clearing")
		c.recvBuf = c.recvBuf[:0]
	}

	return nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return false
}

// handleMessage dispatches one decoded line to the notify/set_difficulty/
// response handlers, mirroring stratum_handle_message.
func (c *Client) handleMessage(msg string) error {
	if len(msg) > 200 {
		log.Debugf("stratum recv: %s...", msg[:200])
	} else {
		log.Debugf("stratum recv: %s", msg)
	}

	if method, ok := jsonGetString(msg, "method"); ok {
		switch method {
		case "mining.notify":
			c.handleNotify(msg)
		case "mining.set_difficulty":
			c.handleSetDifficulty(msg)
		}
		return nil
	}

	if _, ok := jsonGetInt(msg, "id"); ok {
		return c.handleResponse(msg)
	}

	return nil
}

func (c *Client) handleResponse(msg string) error {
	switch c.state {
	case Subscribing:
		if !indexOfField(msg, "result") {
			return &ProtocolError{Msg: "subscribe response missing result"}
		}
		log.Infof("stratum: subscribed")
		return c.authorize()

	case Authorizing:
		ok, present := jsonGetBool(msg, "result")
		if !present || !ok {
			return &AuthError{Reason: "authorize returned false or missing result"}
		}
		log.Infof("stratum: authorized as %s.%s", c.wallet, c.worker)
		c.state = Connected
		return nil

	default:
		if ok, present := jsonGetBool(msg, "result"); present {
			if ok {
				c.acceptedShares++
				log.Infof("stratum: share accepted (%d/%d)", c.acceptedShares, c.acceptedShares+c.rejectedShares)
			} else {
				c.rejectedShares++
				log.Warnf("stratum: share rejected (%d/%d)", c.rejectedShares, c.acceptedShares+c.rejectedShares)
			}
		}
		return nil
	}
}

func indexOfField(msg, key string) bool {
	_, ok := jsonGetString(msg, key)
	if ok {
		return true
	}
	// result may be a bare object/array/bool rather than a string.
	idx := indexSubstr(msg, `"`+key+`"`)
	return idx >= 0
}

func indexSubstr(s, sub string) int {
	n, m := len(s), len(sub)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}

// handleNotify parses a mining.notify params array:
// [job_id, phash_hex, bnum, diff, time0, mroot, clean].
func (c *Client) handleNotify(msg string) {
	paramsIdx := indexSubstr(msg, `"params"`)
	if paramsIdx < 0 {
		return
	}
	fields := splitParamsArray(msg[paramsIdx:])
	if len(fields) < 6 {
		log.Warnf("stratum: notify with too few fields (%d)", len(fields))
		return
	}

	jobID := fields[0]
	if len(jobID) > jobIDLen {
		jobID = jobID[:jobIDLen]
	}

	phashBytes, ok := hexToBytes(fields[1], 32)
	if !ok {
		log.Warnf("stratum: notify: bad phash")
		return
	}
	// bnum is a raw little-endian byte dump (hex_to_bytes in the reference
	// client), not a hex-or-decimal integer like difficulty/time0 below.
	bnumBytes, ok := hexToBytes(fields[2], 8)
	if !ok {
		log.Warnf("stratum: notify: bad bnum")
		return
	}
	bnum := binary.LittleEndian.Uint64(bnumBytes)
	diff, ok := parseHexOrDecimal(fields[3])
	if !ok {
		log.Warnf("stratum: notify: bad difficulty")
		return
	}
	time0, ok := parseHexOrDecimal(fields[4])
	if !ok {
		log.Warnf("stratum: notify: bad time0")
		return
	}
	mrootBytes, ok := hexToBytes(fields[5], 32)
	if !ok {
		log.Warnf("stratum: notify: bad mroot")
		return
	}

	var phash, mroot [32]byte
	copy(phash[:], phashBytes)
	copy(mroot[:], mrootBytes)

	c.pending = Job{
		ID:         jobID,
		PrevHash:   phash,
		BlockNum:   bnum,
		Difficulty: byte(diff),
		Time0:      uint32(time0),
		MerkleRoot: mroot,
		Valid:      true,
		Seq:        c.pending.Seq + 1,
	}
	log.Infof("stratum: new job %s (diff=%d)", jobID, c.pending.Difficulty)
}

func (c *Client) handleSetDifficulty(msg string) {
	paramsIdx := indexSubstr(msg, `"params"`)
	if paramsIdx < 0 {
		return
	}
	fields := splitParamsArray(msg[paramsIdx:])
	if len(fields) < 1 {
		return
	}
	v, ok := parseHexOrDecimal(fields[0])
	if !ok || v == 0 {
		return
	}
	c.difficulty = byte(v)
	log.Infof("stratum: pool difficulty set to %d", c.difficulty)
}

// HasJob is true iff a pending job is valid and has not yet been consumed
// by GetJob.
func (c *Client) HasJob() bool {
	return c.pending.Valid && c.pending.Seq != c.current.Seq
}

// GetJob copies the pending job into current and projects it into out.
// It returns the job id to use on a subsequent Submit call.
func (c *Client) GetJob(out *trailer.Trailer) (string, error) {
	if !c.pending.Valid {
		return "", &ProtocolError{Msg: "get_job called with no pending job"}
	}
	c.current = c.pending
	*out = *c.current.Trailer()
	return c.current.ID, nil
}

// Submit sends a mining.submit for the given job, deduplicated against a
// small recently-submitted cache so a coordinator bug that calls Submit
// twice for the same solve cannot double-spend the round trip. Only
// permitted while CONNECTED.
func (c *Client) Submit(jobID string, nonce, hash [32]byte) error {
	if c.state != Connected {
		return &ProtocolError{Msg: "submit called while not connected"}
	}
	key := jobID + ":" + bytesToHex(nonce[:])
	if c.submitted.Contains(key) {
		log.Debugf("stratum: suppressing duplicate submit for %s", key)
		return nil
	}

	params := fmt.Sprintf(`["%s.%s","%s","%s","%s"]`,
		c.wallet, c.worker, jobID, bytesToHex(nonce[:]), bytesToHex(hash[:]))
	if err := c.send("mining.submit", params); err != nil {
		c.Disconnect()
		return err
	}
	c.submitted.Add(key)
	log.Debugf("stratum: submitted share for job %s", jobID)
	return nil
}
