// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"crypto/sha256"
	"fmt"
	"runtime/metrics"
	"sync"
	"time"

	"github.com/ubench-dev/ubench/agent"
)

// A workload is one run of measured work. size scales it.
type workload func(size int)

func lookupWorkload(name string) (workload, error) {
	switch name {
	case "hash":
		return hashWork, nil
	case "sleep":
		return sleepWork, nil
	case "alloc":
		return allocWork, nil
	case "spin":
		return spinWork, nil
	}
	return nil, fmt.Errorf("unknown workload %q", name)
}

var sink []byte

func hashWork(size int) {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i)
	}
	sum := sha256.Sum256(buf)
	sink = sum[:]
}

func sleepWork(size int) {
	time.Sleep(time.Duration(size) * time.Microsecond / 64)
}

func allocWork(size int) {
	var keep [][]byte
	for i := 0; i < size/64; i++ {
		keep = append(keep, make([]byte, 64+i%256))
	}
	if len(keep) > 0 {
		sink = keep[len(keep)-1]
	}
}

func spinWork(size int) {
	x := uint64(size)
	for i := 0; i < size; i++ {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
	}
	sink = []byte{byte(x)}
}

// goRuntime forwards Go garbage collections to the agent as host VM
// collections.
type goRuntime struct {
	agent *agent.Agent

	mu     sync.Mutex
	sample []metrics.Sample
	seen   uint64
}

func newGoRuntime(a *agent.Agent) *goRuntime {
	r := &goRuntime{
		agent:  a,
		sample: []metrics.Sample{{Name: "/gc/cycles/total:gc-cycles"}},
	}
	r.seen = r.cycles()
	return r
}

func (r *goRuntime) cycles() uint64 {
	metrics.Read(r.sample)
	if r.sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return r.sample[0].Value.Uint64()
}

// sync reports the collections that finished since the last call.
func (r *goRuntime) sync() {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.cycles()
	for ; r.seen < n; r.seen++ {
		r.agent.GarbageCollectionFinish()
	}
}
