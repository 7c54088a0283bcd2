// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveWorkDimensions(t *testing.T) {
	tests := []struct {
		name             string
		computeUnits     int
		maxWorkGroup     int
		wantLocal        uint64
		wantGlobal       uint64
	}{
		{"capped at 256", 20, 1024, 256, 20 * 256 * 256},
		{"below cap", 20, 64, 64, 20 * 256 * 64},
		{"zero workgroup floors to one", 20, 0, 1, 20 * 256 * 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local, global := deriveWorkDimensions(tt.computeUnits, tt.maxWorkGroup)
			assert.Equal(t, tt.wantLocal, local)
			assert.Equal(t, tt.wantGlobal, global)
		})
	}
}

func TestEnumerateDeterministicOrder(t *testing.T) {
	ctxs, err := Enumerate(0)
	require.NoError(t, err)
	for i, ctx := range ctxs {
		assert.Equal(t, i, ctx.ID)
		assert.Equal(t, StatusNull, ctx.Status)
	}
}

func TestEnumerateRespectsLimit(t *testing.T) {
	all, err := Enumerate(0)
	require.NoError(t, err)
	if len(all) < 2 {
		t.Skip("fewer than two simulated devices available")
	}
	limited, err := Enumerate(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "gpu-A", KindCUDA.String())
	assert.Equal(t, "gpu-B", KindOpenCL.String())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "NULL", StatusNull.String())
	assert.Equal(t, "FAIL", StatusFail.String())
}
