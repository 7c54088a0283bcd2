// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package device

// Enumerate discovers candidate compute devices, in deterministic
// platform-index-then-device-index order, filters out any reporting less
// than 1.2 GiB of global memory, and returns a Context per surviving
// device with Status initialised to StatusNull. If limit > 0, at most
// limit contexts are returned.
//
// Enumerate never returns an error for "no devices found"; it returns an
// empty slice. A nil error with a non-empty slice means enumeration ran to
// completion; individual device failures are logged and the device is
// skipped, matching SPEC_FULL.md §4.1.
func Enumerate(limit int) ([]*Context, error) {
	ctxs, err := enumerateImpl(limit)
	if err != nil {
		return nil, err
	}
	for _, ctx := range ctxs {
		Enrich(ctx)
	}
	return ctxs, nil
}
