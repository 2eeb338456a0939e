// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package measurement

type noCatalogue struct{}

func defaultCatalogue() Catalogue { return noCatalogue{} }

func (noCatalogue) DefaultComponent() string { return "" }

func (noCatalogue) Lookup(component, counter string) (HardwareCounter, error) {
	return HardwareCounter{}, errNoCounters
}

func (noCatalogue) ForEach(func(component, counter string) bool) error { return nil }

type noOpener struct{}

func defaultOpener() CounterOpener { return noOpener{} }

func (noOpener) Open([]HardwareCounter, bool) (CounterGroup, error) {
	return nil, errNoCounters
}
