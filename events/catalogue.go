// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

// A Name is an event name qualified by the PMU that counts it.
type Name struct {
	PMU   string
	Event string
}

// Encoding returns the string ParseEvent accepts for n.
func (n Name) Encoding() string {
	switch n.PMU {
	case "", "cpu", "software":
		return n.Event
	}
	return n.PMU + "/" + n.Event + "/"
}

func (n Name) String() string {
	if n.PMU == "" {
		return n.Event
	}
	return n.PMU + ":" + n.Event
}

// ForEach calls fn for every event name the host can count, stopping early if
// fn returns false. Builtin hardware and cache events come first, then
// builtin software events, then events described in sysfs, and finally the
// extended CPU events from perf list -j. Each name is reported once. PMUs
// whose sysfs description doesn't parse are skipped.
func ForEach(fn func(Name) bool) error {
	seen := make(map[Name]bool)
	emit := func(n Name) bool {
		if seen[n] {
			return true
		}
		seen[n] = true
		return fn(n)
	}

	hw, sw := builtinNames()
	for _, name := range hw {
		if !emit(Name{"cpu", name}) {
			return nil
		}
	}
	for _, name := range sw {
		if !emit(Name{"software", name}) {
			return nil
		}
	}

	pmuList, err := pmuNames()
	if err != nil {
		return err
	}
	for _, pmu := range pmuList {
		desc, err := pmus.get(pmu)
		if err != nil {
			// Not countable if we can't parse its description.
			continue
		}
		for _, name := range desc.eventNames() {
			if !emit(Name{pmu, name}) {
				return nil
			}
		}
	}

	for _, name := range perfListNames() {
		if !emit(Name{"cpu", name}) {
			return nil
		}
	}
	return nil
}
