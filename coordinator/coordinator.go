// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package coordinator implements the stateless glue loop that ties the
// Stratum client to a set of device drivers: pulling jobs, ticking every
// attached device, and forwarding solves back to the pool.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/decred/dcrd/crypto/blake256"

	"github.com/adequatesystems/peach-miner/device"
	"github.com/adequatesystems/peach-miner/device/peach"
	"github.com/adequatesystems/peach-miner/stratum"
	"github.com/adequatesystems/peach-miner/trailer"
)

// Slot pairs an attached device with the driver mining it. Once Removed
// is set (after a TIMEOUT tick), the coordinator skips it on every
// subsequent iteration until it is reattached externally.
type Slot struct {
	Context *device.Context
	Driver  *peach.Driver
	Removed bool
}

// Coordinator drives a Stratum client and a fixed set of device slots
// through one iteration at a time. It holds no goroutines of its own;
// Run's loop is the only concurrency primitive, and Tick alone is
// sufficient for synchronous/test-driven use.
type Coordinator struct {
	Client  *stratum.Client
	Slots   []*Slot
	Metrics *Metrics

	currentJobID string
	haveJob      bool
	lastJob      trailer.Trailer

	lastAccepted uint64
	lastRejected uint64
}

// New constructs a Coordinator around an already-configured Stratum
// client and a set of attached device slots.
func New(client *stratum.Client, slots []*Slot) *Coordinator {
	return &Coordinator{
		Client:  client,
		Slots:   slots,
		Metrics: NewMetrics(),
	}
}

// Tick runs exactly one iteration of the glue loop described in
// SPEC_FULL.md §4.4: poll the pool, pull a fresh job if one is pending,
// tick every non-removed device, and submit any solves.
func (c *Coordinator) Tick() error {
	if err := c.Client.Process(); err != nil {
		log.Warnf("coordinator: stratum process: %v", err)
	}

	if c.Client.HasJob() {
		var bt trailer.Trailer
		jobID, err := c.Client.GetJob(&bt)
		if err != nil {
			log.Warnf("coordinator: get_job: %v", err)
		} else {
			c.currentJobID = jobID
			c.haveJob = true
			c.lastJob = bt
		}
	}

	if c.haveJob {
		var total float64
		for _, slot := range c.Slots {
			if slot.Removed {
				continue
			}
			var out trailer.Trailer
			in := c.lastJob
			res, err := slot.Driver.Tick(&in, c.Client.Difficulty(), &out)
			if err != nil {
				log.Errorf("coordinator: device %d: %v", slot.Context.ID, err)
			}
			switch res {
			case peach.Solve:
				c.submitSolve(&out)
			case peach.Timeout:
				slot.Removed = true
				log.Errorf("coordinator: device %d removed from rotation after TIMEOUT", slot.Context.ID)
			}
			c.Metrics.observeDevice(slot.Context)
			total += slot.Context.HPS
		}
		c.Metrics.setAggregateHashrate(total)
	}

	accepted, rejected := c.Client.AcceptedShares(), c.Client.RejectedShares()
	c.Metrics.observeShareDelta(accepted-c.lastAccepted, rejected-c.lastRejected)
	c.lastAccepted, c.lastRejected = accepted, rejected

	return nil
}

// submitSolve computes the §9(d) share-hash fingerprint and submits the
// nonce to the pool.
func (c *Coordinator) submitSolve(out *trailer.Trailer) {
	nonce := out.Nonce()
	hash := shareFingerprint(out)
	if err := c.Client.Submit(c.currentJobID, nonce, hash); err != nil {
		log.Errorf("coordinator: submit: %v", err)
	}
}

// shareFingerprint computes a blake256 digest of the solved trailer's
// header prefix and full nonce, standing in for the out-of-scope Peach
// verification hash on the mining.submit wire field. See DESIGN.md Open
// Question (d).
func shareFingerprint(t *trailer.Trailer) [32]byte {
	prefix := t.HeaderPrefix()
	nonce := t.Nonce()
	h := blake256.New()
	h.Write(prefix[:])
	h.Write(nonce[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Run drives Tick in a loop until ctx is cancelled, or returns an error
// once every slot has been removed from rotation. While the Stratum client
// is disconnected it waits one second and then tries to reconnect.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := c.Tick(); err != nil {
			return err
		}
		usable := false
		for _, slot := range c.Slots {
			if !slot.Removed {
				usable = true
				break
			}
		}
		if !usable {
			return errors.New("no usable devices remaining")
		}
		if !c.Client.IsConnected() {
			time.Sleep(time.Second)
			if err := c.Client.Connect(); err != nil {
				log.Warnf("coordinator: reconnect: %v", err)
			}
		}
	}
}
