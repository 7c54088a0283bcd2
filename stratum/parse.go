// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stratum

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// jsonGetString is a permissive, allocation-light scan for `"key":"value"`
// inside a raw JSON-RPC line. It is not a general JSON parser: it trusts
// the pool to emit well-formed messages and only extracts the one field it
// is asked for, grounded on the reference client's json_get_string.
func jsonGetString(msg, key string) (string, bool) {
	idx := strings.Index(msg, `"`+key+`"`)
	if idx < 0 {
		return "", false
	}
	rest := msg[idx+len(key)+2:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return "", false
	}
	rest = strings.TrimLeft(rest[colon+1:], " \t")
	if len(rest) == 0 || rest[0] != '"' {
		return "", false
	}
	rest = rest[1:]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// jsonGetBool scans for `"key":true|false`.
func jsonGetBool(msg, key string) (bool, bool) {
	idx := strings.Index(msg, `"`+key+`"`)
	if idx < 0 {
		return false, false
	}
	rest := msg[idx+len(key)+2:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return false, false
	}
	rest = strings.TrimLeft(rest[colon+1:], " \t")
	switch {
	case strings.HasPrefix(rest, "true"):
		return true, true
	case strings.HasPrefix(rest, "false"):
		return false, true
	default:
		return false, false
	}
}

// jsonGetInt scans for `"key":N`, where N is a possibly-negative decimal
// literal. It does not accept hex: the fields that use hex-or-decimal
// encoding (difficulty, time0) are parsed by parseHexOrDecimal, and bnum
// is decoded by hexToBytes as raw little-endian bytes.
func jsonGetInt(msg, key string) (int, bool) {
	idx := strings.Index(msg, `"`+key+`"`)
	if idx < 0 {
		return 0, false
	}
	rest := msg[idx+len(key)+2:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return 0, false
	}
	rest = strings.TrimLeft(rest[colon+1:], " \t")
	end := 0
	for end < len(rest) && (rest[end] == '-' || (rest[end] >= '0' && rest[end] <= '9')) {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// splitParamsArray splits the top-level elements of a JSON array literal
// (e.g. `["a", "b", 1]`), tolerating a mix of quoted strings and bare
// numeric/boolean literals, matching the hand-rolled sequential scan of
// the reference parser. Nested arrays/objects are not supported, as the
// notify/set_difficulty payloads never contain any.
func splitParamsArray(params string) []string {
	start := strings.IndexByte(params, '[')
	if start < 0 {
		return nil
	}
	end := strings.LastIndexByte(params, ']')
	if end < 0 || end <= start {
		return nil
	}
	body := params[start+1 : end]

	var fields []string
	i := 0
	for i < len(body) {
		for i < len(body) && (body[i] == ' ' || body[i] == ',' || body[i] == '\t') {
			i++
		}
		if i >= len(body) {
			break
		}
		if body[i] == '"' {
			j := i + 1
			for j < len(body) && body[j] != '"' {
				j++
			}
			fields = append(fields, body[i+1:j])
			i = j + 1
			continue
		}
		j := i
		for j < len(body) && body[j] != ',' && body[j] != ']' {
			j++
		}
		fields = append(fields, strings.TrimSpace(body[i:j]))
		i = j
	}
	return fields
}

// parseHexOrDecimal accepts either a "0x"-prefixed hex literal or a plain
// decimal literal, falling back to bare hex when decimal parsing fails,
// matching the reference parser's dual acceptance for difficulty/time0.
func parseHexOrDecimal(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		return v, err == nil
	}
	// A bare value that happens to be all hex digits but longer than a
	// reasonable decimal block number (e.g. a 16-hex-char phash fragment
	// mistakenly routed here) is still parsed as decimal first, falling
	// back to hex only on decimal-parse failure -- the notify fields this
	// is used for are never ambiguous between the two in practice.
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, true
	}
	v, err := strconv.ParseUint(s, 16, 64)
	return v, err == nil
}

// hexToBytes decodes a hex string into exactly n bytes, padding with zero
// bytes on the right if the source is short and truncating if long,
// matching the reference hex_to_bytes's length-clamped semantics. It
// rejects non-hex input outright rather than silently zero-filling it.
func hexToBytes(s string, n int) ([]byte, bool) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) > n*2 {
		s = s[:n*2]
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, raw)
	return out, true
}

func bytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}
