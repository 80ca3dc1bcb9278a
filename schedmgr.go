// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin || freebsd || openbsd

package cosched

import (
	"sync"
	"sync/atomic"
	"time"
)

// SchedManager owns the fleet of schedulers and the round-robin dispatch
// counter.
type SchedManager struct {
	scheds []*Sched
	n      atomic.Uint32
	r      uint32 // 2^32 mod N
	mask   uint32 // N-1 when N is a power of two, else ^0
}

func newSchedManager(cfg Config) *SchedManager {
	num := cfg.Schedulers
	m := &SchedManager{
		scheds: make([]*Sched, num),
		r:      uint32((uint64(1) << 32) % uint64(num)),
		mask:   ^uint32(0),
	}
	if m.r == 0 {
		m.mask = uint32(num) - 1
	}
	m.n.Store(^uint32(0))
	for i := range m.scheds {
		s, err := newSched(int32(i), num, cfg.SchedLog)
		if err != nil {
			// The process cannot make progress without its schedulers.
			pkgLogger().Fatal().Err(err).Int("sched", i).Log("scheduler init failed")
			panic(err)
		}
		m.scheds[i] = s
	}
	for _, s := range m.scheds {
		s.start()
	}
	return m
}

// Next picks a scheduler. When N divides 2^32 dispatch is a masked
// counter, uniform and lock-free. Otherwise it is counter mod N while the
// counter is below 2^32-r, and falls back to the monotonic microsecond
// clock for the residual range where an unbiased wrap is impossible.
func (m *SchedManager) Next() *Sched {
	if m.mask != ^uint32(0) {
		return m.scheds[m.n.Add(1)&m.mask]
	}
	n := m.n.Add(1)
	if n <= ^m.r { // n <= 2^32 - 1 - r
		return m.scheds[n%uint32(len(m.scheds))]
	}
	return m.scheds[uint32(monoMicros())%uint32(len(m.scheds))]
}

// Scheds returns the fleet.
func (m *SchedManager) Scheds() []*Sched { return m.scheds }

// stop signals every scheduler and waits for each to acknowledge.
func (m *SchedManager) stop() {
	for _, s := range m.scheds {
		if s.stopFlag.CompareAndSwap(false, true) {
			s.demux.signal()
		}
	}
	for _, s := range m.scheds {
		<-s.done
	}
}

var processStart = time.Now()

func monoMicros() int64 {
	return time.Since(processStart).Microseconds()
}

// Global fleet, created on first use.
var (
	configMu      sync.Mutex
	pendingConfig = DefaultConfig()
	managerPtr    atomic.Pointer[SchedManager]
)

func managerActive() bool { return managerPtr.Load() != nil }

// schedManager returns the fleet, creating (and starting) it on first
// use from the pending configuration plus environment overrides.
func schedManager() *SchedManager {
	if m := managerPtr.Load(); m != nil {
		return m
	}
	configMu.Lock()
	defer configMu.Unlock()
	if m := managerPtr.Load(); m != nil {
		return m
	}
	m := newSchedManager(applyEnv(pendingConfig))
	managerPtr.Store(m)
	return m
}
