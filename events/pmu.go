// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// The directory and fs.FS of the event source devices. These are variables so
// they can be stubbed by tests.
var (
	pmuDir = "/sys/bus/event_source/devices"
	pmuFS  = os.DirFS(pmuDir)
)

// A pmuDesc is the sysfs description of one PMU.
type pmuDesc struct {
	name   string
	pmu    uint32
	format map[string]pmuFormat // Keyed by symbolic field name
	events map[string]pmuEvent  // Keyed by event name
}

// A configWord selects one of the 64-bit words of a rawEvent that formats
// write into.
type configWord uint8

const (
	wordConfig configWord = iota
	wordConfig1
	wordConfig2
	wordPeriod
)

var configWordNames = map[string]configWord{
	"config":  wordConfig,
	"config1": wordConfig1,
	"config2": wordConfig2,
}

func (w configWord) of(e *rawEvent) *uint64 {
	switch w {
	case wordConfig1:
		return &e.config1
	case wordConfig2:
		return &e.config2
	case wordPeriod:
		return &e.period
	}
	return &e.config
}

// A pmuFormat places the value of a parameter into bit ranges of a word.
// Ranges are filled low bits first.
type pmuFormat struct {
	name string
	word configWord
	bits []bitRange
}

type bitRange struct {
	shift, width int
}

var wholeWord = []bitRange{{0, 64}}

// fixedFormats are the parameters every PMU accepts.
var fixedFormats = map[string]configWord{
	"config":  wordConfig,
	"config1": wordConfig1,
	"config2": wordConfig2,
	"period":  wordPeriod,
}

type pmuEvent struct {
	params []eventParam
	scale  float64
	unit   string
}

// getFormat returns the pmuFormat for the given parameter in a PMU event
// description. E.g., in "cpu/config=42,edge/", "config" and "edge" would be
// mapped to formats using this method on the "cpu" PMU.
func (d *pmuDesc) getFormat(param string) (pmuFormat, bool) {
	// TODO: Perf also supports config3,name,percore,metric-id
	if w, ok := fixedFormats[param]; ok {
		return pmuFormat{param, w, wholeWord}, true
	}
	f, ok := d.format[param]
	return f, ok
}

// set stores val into f's bits of e. It fails if val doesn't fit.
func (f pmuFormat) set(e *rawEvent, val uint64) error {
	word := f.word.of(e)
	rest, width := val, 0
	for _, r := range f.bits {
		mask := uint64(1)<<r.width - 1
		*word = *word&^(mask<<r.shift) | (rest&mask)<<r.shift
		rest >>= r.width
		width += r.width
	}
	if rest != 0 {
		return fmt.Errorf("parameter %s=%d not in range 0-%d", f.name, val, uint64(1)<<width-1)
	}
	return nil
}

func resolvePMUEvent(pmu *pmuDesc, eventName string, ev *rawEvent) error {
	pmuEv, ok := pmu.events[eventName]
	if !ok {
		return errUnknownEvent
	}
	for _, param := range pmuEv.params {
		f, ok := pmu.getFormat(param.k)
		if !ok {
			return fmt.Errorf("unknown parameter %q in %s description", param.k, eventName)
		}
		if err := f.set(ev, param.v); err != nil {
			return err
		}
	}
	ev.scale, ev.unit = pmuEv.scale, pmuEv.unit
	return nil
}

// pmus holds the description of each PMU, loaded from pmuFS on first use.
var pmus = newLazyMap(loadPMU)

func loadPMU(pmu string) (*pmuDesc, error) {
	typ, err := readPMUType(pmu)
	if err != nil {
		return nil, err
	}
	desc := &pmuDesc{name: pmu, pmu: typ}
	if desc.format, err = readPMUFormats(pmu); err != nil {
		return nil, err
	}
	if desc.events, err = readPMUEvents(pmu); err != nil {
		return nil, err
	}
	return desc, nil
}

func readPMUType(pmu string) (uint32, error) {
	data, err := fs.ReadFile(pmuFS, filepath.Join(pmu, "type"))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("unknown PMU %q", pmu)
	} else if err != nil {
		return 0, fmt.Errorf("unknown PMU %q: %w", pmu, err)
	}
	s := string(bytes.TrimRight(data, "\n"))
	typ, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("error parsing PMU %q type %q: %w", pmu, s, err)
	}
	return uint32(typ), nil
}

func readPMUFormats(pmu string) (map[string]pmuFormat, error) {
	formats := make(map[string]pmuFormat)
	err := pmuForEachFile(filepath.Join(pmu, "format"), func(name, data string) error {
		f, err := pmuParseFormat(data)
		if err != nil {
			return err
		}
		f.name = name
		formats[name] = f
		return nil
	})
	return formats, err
}

// readPMUEvents reads the events directory of pmu. Each event file holds a
// parameter list, optionally with NAME.scale and NAME.unit companions. See
// https://www.kernel.org/doc/Documentation/ABI/testing/sysfs-bus-event_source-devices-events
func readPMUEvents(pmu string) (map[string]pmuEvent, error) {
	events := make(map[string]pmuEvent)
	extra := make(map[string]string)
	err := pmuForEachFile(filepath.Join(pmu, "events"), func(name, data string) error {
		data = strings.TrimRight(data, "\n")
		if strings.Contains(name, ".") {
			extra[name] = data
			return nil
		}
		params, err := parseParamList(data)
		if err != nil {
			return err
		}
		events[name] = pmuEvent{params: params, scale: 1}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Companion files for unknown events and other suffixes are ignored.
	for file, data := range extra {
		name, suffix, _ := strings.Cut(file, ".")
		ev, ok := events[name]
		if !ok {
			continue
		}
		switch suffix {
		case "scale":
			s, err := strconv.ParseFloat(data, 64)
			if err != nil {
				return nil, fmt.Errorf("%w (from %s)", err, filepath.Join(pmuDir, pmu, "events", file))
			}
			ev.scale = s
		case "unit":
			ev.unit = data
		}
		events[name] = ev
	}
	return events, nil
}

// eventNames returns the names of the events described in sysfs for this PMU,
// in sorted order.
func (d *pmuDesc) eventNames() []string {
	return slices.Sorted(maps.Keys(d.events))
}

// pmuNames returns the names of all PMUs in pmuFS, in sorted order.
func pmuNames() ([]string, error) {
	ents, err := fs.ReadDir(pmuFS, ".")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", pmuDir, err)
	}
	var names []string
	for _, ent := range ents {
		// The devices are usually symlinks into /sys/devices.
		if _, err := fs.Stat(pmuFS, filepath.Join(ent.Name(), "type")); err == nil {
			names = append(names, ent.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// pmuTypeNames maps dynamic PMU types to PMU names.
var pmuTypeNames = sync.OnceValues(func() (map[uint32]string, error) {
	names, err := pmuNames()
	if err != nil {
		return nil, err
	}
	m := make(map[uint32]string)
	for _, name := range names {
		if desc, err := pmus.get(name); err == nil {
			m[desc.pmu] = name
		}
	}
	return m, nil
})

var staticPMUNames = map[uint32]string{
	unix.PERF_TYPE_HARDWARE:   "cpu",
	unix.PERF_TYPE_HW_CACHE:   "cpu",
	unix.PERF_TYPE_RAW:        "cpu",
	unix.PERF_TYPE_SOFTWARE:   "software",
	unix.PERF_TYPE_TRACEPOINT: "tracepoint",
	unix.PERF_TYPE_BREAKPOINT: "breakpoint",
}

// PMUName returns the name of the PMU with the given perf type. The static
// types used by builtin events map to the PMUs that count them.
func PMUName(typ uint32) (string, error) {
	if name, ok := staticPMUNames[typ]; ok {
		return name, nil
	}
	m, err := pmuTypeNames()
	if err != nil {
		return "", err
	}
	if name, ok := m[typ]; ok {
		return name, nil
	}
	return "", fmt.Errorf("unknown PMU type %d", typ)
}

// pmuForEachFile calls f with the name and content of each file in dir. A
// missing dir has no files.
func pmuForEachFile(dir string, f func(name, data string) error) error {
	ents, err := fs.ReadDir(pmuFS, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error reading %s: %w", filepath.Join(pmuDir, dir), err)
	}
	for _, ent := range ents {
		path := filepath.Join(dir, ent.Name())
		b, err := fs.ReadFile(pmuFS, path)
		if err != nil {
			return fmt.Errorf("error reading %s: %w", filepath.Join(pmuDir, path), err)
		}
		if err := f(ent.Name(), string(b)); err != nil {
			return fmt.Errorf("%w (from %s)", err, filepath.Join(pmuDir, path))
		}
	}
	return nil
}

// pmuParseFormat parses a format file such as "config:0-7,32-35". See
// https://www.kernel.org/doc/Documentation/ABI/testing/sysfs-bus-event_source-devices-format
func pmuParseFormat(s string) (pmuFormat, error) {
	s = strings.TrimRight(s, "\n")
	word, ranges, ok := strings.Cut(s, ":")
	if !ok {
		return pmuFormat{}, fmt.Errorf("error parsing format %q", s)
	}
	w, ok := configWordNames[word]
	if !ok {
		return pmuFormat{}, fmt.Errorf("error parsing format %q: unknown field %s", s, word)
	}
	f := pmuFormat{word: w}
	for _, r := range strings.Split(ranges, ",") {
		br, err := parseBitRange(r)
		if err != nil {
			return pmuFormat{}, fmt.Errorf("error parsing format %q: %w", s, err)
		}
		f.bits = append(f.bits, br)
	}
	return f, nil
}

// parseBitRange parses "lo-hi" or a single bit "n".
func parseBitRange(s string) (bitRange, error) {
	lo, hi, isRange := strings.Cut(s, "-")
	shift, err := strconv.Atoi(lo)
	if err != nil {
		return bitRange{}, err
	}
	if !isRange {
		return bitRange{shift, 1}, nil
	}
	top, err := strconv.Atoi(hi)
	if err != nil {
		return bitRange{}, err
	}
	if top < shift || top > 63 {
		return bitRange{}, fmt.Errorf("bad bit range %q", s)
	}
	return bitRange{shift, top - shift + 1}, nil
}
