// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package measurement

import "time"

var epoch = time.Now()

func probeCapabilities() Capabilities {
	return Capabilities{WallClock: true}
}

// wallClockNow reads Go's monotonic clock, relative to package start.
func wallClockNow() int64 {
	return int64(time.Since(epoch))
}

func threadTimeNow() int64 { return 0 }

func readResourceUsage(*ResourceUsage) {}
