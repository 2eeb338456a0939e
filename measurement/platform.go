// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package measurement

// Capabilities reports which backends the platform can collect. It is
// resolved once, when the package is initialized. The [Snapshot] shape is
// the same everywhere; fields of missing backends stay zero.
type Capabilities struct {
	WallClock        bool
	ThreadTime       bool
	ResourceUsage    bool
	HardwareCounters bool
}

// Has reports whether every backend in b is available.
func (c Capabilities) Has(b Backend) bool {
	have := BackendVM
	if c.WallClock {
		have |= BackendWallClock
	}
	if c.ThreadTime {
		have |= BackendThreadTime
	}
	if c.ResourceUsage {
		have |= BackendResourceUsage
	}
	if c.HardwareCounters {
		have |= BackendHardware
	}
	return b&^have == 0
}

var platformCapabilities = probeCapabilities()

// PlatformCapabilities returns the capabilities of the running platform.
func PlatformCapabilities() Capabilities {
	return platformCapabilities
}
