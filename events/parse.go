// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

type rawEvent struct {
	name    string
	pmu     uint32
	config  uint64
	config1 uint64
	config2 uint64
	period  uint64

	scale float64
	unit  string
}

func (e *rawEvent) String() string {
	return e.name
}

func (e *rawEvent) SetAttrs(attr *unix.PerfEventAttr) error {
	attr.Type = e.pmu
	attr.Config = e.config
	attr.Ext1 = e.config1
	attr.Ext2 = e.config2
	attr.Sample = e.period // Union of sample_period and sample_freq
	return nil
}

func (e *rawEvent) ScaleUnit() (float64, string) {
	return e.scale, e.unit
}

// ParseEvent parses a perf event name, either a symbolic name such as
// "cycles" or "L1-dcache-load-misses", or a PMU event in the form
// pmu/k=v,.../.
func ParseEvent(name string) (Event, error) {
	// TODO: Support modifiers

	pmu, params, err := parsePMUEvent(name)
	if err == errNotPMUEvent {
		// Try as a symbolic event.
		pmu = ""
		params = []eventParam{{k: name, kOnly: true}}
	} else if err != nil {
		return nil, err
	}

	rev, err := resolveEvent(name, pmu, params)
	if err != nil {
		return nil, err
	}
	return rev, nil
}

// ParseComponentEvent parses the event called name on the given PMU. An empty
// pmu, "cpu" and "software" accept symbolic names; any other PMU is resolved
// as pmu/name/. The returned event is checked to actually live on pmu.
func ParseComponentEvent(pmu, name string) (Event, error) {
	var ev Event
	var err error
	switch pmu {
	case "", "cpu", "software":
		ev, err = ParseEvent(name)
	default:
		ev, err = ParseEvent(pmu + "/" + name + "/")
	}
	if err != nil {
		return nil, err
	}
	if pmu == "" {
		return ev, nil
	}
	got, err := Component(ev)
	if err != nil {
		return nil, err
	}
	if got != pmu {
		return nil, fmt.Errorf("event %q is counted by PMU %q, not %q", name, got, pmu)
	}
	return ev, nil
}

var errNotPMUEvent = errors.New("not a PMU format event")

// parsePMUEvent parses symbolic PMU event strings in the form pmu/k=v,.../
func parsePMUEvent(name string) (pmu string, params []eventParam, err error) {
	if !(strings.Count(name, "/") == 2 && !strings.HasPrefix(name, "/") && strings.HasSuffix(name, "/")) {
		return "", nil, errNotPMUEvent
	}

	pmu, rest, _ := strings.Cut(name, "/")
	rest = strings.TrimSuffix(rest, "/")
	params, err = parseParamList(rest)
	if err != nil {
		return "", nil, fmt.Errorf("event %q: %w", name, err)
	}
	return pmu, params, nil
}

type eventParam struct {
	k     string
	v     uint64
	kOnly bool // Param may be an event name or k=1
}

// parseParamList parses a comma-separated list of k strings and k=v pairs. A
// lone key has value 1 and may also name an event, so perf has to look in
// /sys to tell event names from keys. See
// https://www.kernel.org/doc/Documentation/ABI/testing/sysfs-bus-event_source-devices-events.
func parseParamList(list string) ([]eventParam, error) {
	fields := strings.Split(list, ",")
	params := make([]eventParam, 0, len(fields))
	for _, s := range fields {
		p, err := parseParam(s)
		if err != nil {
			return nil, fmt.Errorf("error parsing event param list %q: %w", list, err)
		}
		params = append(params, p)
	}
	return params, nil
}

func parseParam(s string) (eventParam, error) {
	k, vs, hasValue := strings.Cut(s, "=")
	if k == "" {
		return eventParam{}, fmt.Errorf("missing parameter name in %q", s)
	}
	if !hasValue {
		return eventParam{k: k, v: 1, kOnly: true}, nil
	}
	// The value can be decimal, hex, or octal.
	v, err := strconv.ParseUint(vs, 0, 64)
	if err != nil {
		return eventParam{}, fmt.Errorf("parameter %q not a number", s)
	}
	return eventParam{k: k, v: v}, nil
}

// An eventResolver fills in ev from the named event on pmu. It returns
// errUnknownEvent if it doesn't know the name, so the next resolver can try.
type eventResolver func(pmu *pmuDesc, eventName string, ev *rawEvent) error

// errUnknownEvent is an internal error returned by eventResolver.
var errUnknownEvent = errors.New("unknown event")

var eventResolvers = []eventResolver{
	resolvePMUEvent,
	resolvePerfListEvent,
}

// resolveEvent resolves an event in the form pmu/param1=N,.../ or a symbolic
// event. Symbolic events have pmu == "" and a single kOnly param.
func resolveEvent(enc string, pmu string, params []eventParam) (*rawEvent, error) {
	// Events with perf constants are baked in and don't necessarily appear in
	// /sys, though sometimes they do. Perf prefers these over /sys. Built-in
	// events use the static PMU types, so other fields would produce
	// malformed events, and we only take the builtin for a lone name.
	if len(params) == 1 && params[0].kOnly {
		if b, ok := resolveBuiltinEvent(pmu, params[0].k); ok {
			return &rawEvent{name: enc, pmu: b.pmu, config: b.config, scale: 1}, nil
		}
	}

	// A symbolic event that isn't builtin implies the CPU PMU.
	symbolic := pmu == ""
	if symbolic {
		pmu = "cpu"
	}
	desc, err := pmus.get(pmu)
	if err != nil {
		return nil, err
	}

	// The named event, if any, is applied first and explicit parameters
	// override it regardless of order.
	event := &rawEvent{name: enc, pmu: desc.pmu, scale: 1}
	named := ""
	var formats []pmuFormat
	var values []uint64
	for _, param := range params {
		if f, ok := desc.getFormat(param.k); ok {
			formats = append(formats, f)
			values = append(values, param.v)
			continue
		}
		ev, err := resolveNamed(desc, enc, param)
		if err == errUnknownEvent {
			if symbolic {
				return nil, fmt.Errorf("unknown event %q", enc)
			}
			return nil, fmt.Errorf("event %q: unknown event or parameter %q", enc, param.k)
		} else if err != nil {
			return nil, err
		}
		if named != "" {
			return nil, fmt.Errorf("event %q: multiple events %q and %q", enc, named, param.k)
		}
		named, event = param.k, ev
	}

	for i, f := range formats {
		if err := f.set(event, values[i]); err != nil {
			return nil, fmt.Errorf("event %q: %w", enc, err)
		}
	}
	return event, nil
}

// resolveNamed tries each eventResolver on a lone key. It returns
// errUnknownEvent if none knows it.
func resolveNamed(desc *pmuDesc, enc string, param eventParam) (*rawEvent, error) {
	if !param.kOnly {
		return nil, errUnknownEvent
	}
	for _, r := range eventResolvers {
		ev := &rawEvent{name: enc, pmu: desc.pmu, scale: 1}
		switch err := r(desc, param.k, ev); err {
		case nil:
			return ev, nil
		case errUnknownEvent:
		default:
			return nil, fmt.Errorf("event %q: %w", enc, err)
		}
	}
	return nil, errUnknownEvent
}
