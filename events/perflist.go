// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// TODO: It might just be better to use the perfmon database. See
// event_download.py in github.com/andikleen/pmu-tools for downloading it all as
// JSON and
// https://github.com/torvalds/linux/blob/master/tools/perf/pmu-events/jevents.py
// for the tool that converts the JSON into perf C definitions.

// A perfListEntry is one event of perf list -j. Metrics have no EventName
// and are ignored.
type perfListEntry struct {
	Unit              string
	Topic             string
	EventName         string
	ScaleUnit         string
	EventAlias        string
	EventType         string
	BriefDescription  string
	PublicDescription string
	Encoding          string
}

// A perfList is the event catalogue of the host perf tool.
type perfList struct {
	byName map[string]*perfListEntry // By EventName and EventAlias

	// cpuNames are the event names with an encoding for the cpu PMU,
	// sorted.
	cpuNames []string
}

// perfListHook, if set, replaces running perf list -j.
var perfListHook func(outBuf io.Writer)

var hostPerfList = sync.OnceValues(func() (*perfList, error) {
	var outBuf, errBuf bytes.Buffer
	var err error
	if perfListHook != nil {
		perfListHook(&outBuf)
	} else {
		cmd := exec.Command("perf", "list", "-j")
		cmd.Stdout = &outBuf
		cmd.Stderr = &errBuf
		err = cmd.Run()
	}
	return parsePerfList(outBuf.Bytes(), errBuf.Bytes(), err)
})

// perfErrRe matches errors perf (as of 6.5.13) may interleave with the
// JSON on stdout.
var perfErrRe = regexp.MustCompile(`\}Error: .*`)

// parsePerfList parses the output of perf list -j. runErr and errOut are the
// error and stderr of running it.
func parsePerfList(data, errOut []byte, runErr error) (*perfList, error) {
	if runErr != nil {
		return nil, perfListError(runErr, string(errOut))
	}

	data = perfErrRe.ReplaceAllLiteral(data, []byte(`}`))
	var entries []*perfListEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error decoding perf list -j output: %w", err)
	}

	l := &perfList{byName: make(map[string]*perfListEntry)}
	for _, e := range entries {
		if e.EventName == "" {
			continue
		}
		l.byName[e.EventName] = e
		if e.EventAlias != "" {
			l.byName[e.EventAlias] = e
		}
		if e.Encoding != "" && (e.Unit == "" || e.Unit == "cpu") {
			l.cpuNames = append(l.cpuNames, e.EventName)
		}
	}
	slices.Sort(l.cpuNames)
	l.cpuNames = slices.Compact(l.cpuNames)
	return l, nil
}

func perfListError(err error, stderr string) error {
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return fmt.Errorf("perf command not found; cannot enumerate extended events")
	case strings.Contains(stderr, "Error: unknown switch `j'"):
		// JSON support was added in linux-kernel commit
		// 6ed249441a7d3ead8e81cc926e68d5e7ae031032
		return fmt.Errorf("perf version must be >= 6.2; cannot enumerate extended events")
	case stderr != "":
		return fmt.Errorf("perf list -j failed:\n%s", strings.TrimSpace(stderr))
	}
	return fmt.Errorf("perf list -j failed: %w", err)
}

// resolvePerfListEvent resolves CPU events known to perf list -j.
func resolvePerfListEvent(pmu *pmuDesc, eventName string, ev *rawEvent) error {
	if pmu.pmu != unix.PERF_TYPE_RAW {
		return errUnknownEvent
	}
	l, err := hostPerfList()
	if err != nil {
		return err
	}
	e, ok := l.byName[eventName]
	if !ok {
		return errUnknownEvent
	}
	return e.encode(pmu, ev)
}

// encode sets the config fields of ev from the entry's encoding, using the
// formats of pmu.
func (e *perfListEntry) encode(pmu *pmuDesc, ev *rawEvent) error {
	if e.Encoding == "" {
		return fmt.Errorf("unsupported event %q: no encoding from perf list -j", e.EventName)
	}
	pmuName, params, err := parsePMUEvent(e.Encoding)
	if err == nil && pmuName != "cpu" {
		err = fmt.Errorf("expected PMU %q", "cpu")
	}
	if err != nil {
		return fmt.Errorf("unexpected encoding %q from perf list -j: %w", e.Encoding, err)
	}
	scale, unit, err := parseScaleUnit(e.ScaleUnit)
	if err != nil {
		return fmt.Errorf("unexpected ScaleUnit %q from perf list -j: %w", e.ScaleUnit, err)
	}

	for _, param := range params {
		f, ok := pmu.getFormat(param.k)
		if !ok {
			return fmt.Errorf("unknown parameter %q in encoding %q from perf list -j", param.k, e.Encoding)
		}
		if err := f.set(ev, param.v); err != nil {
			return err
		}
	}
	ev.scale, ev.unit = scale, unit
	return nil
}

// parseScaleUnit splits a ScaleUnit like "6.1e-5MiB" into its scale and
// unit. An empty string is scale 1 with no unit.
func parseScaleUnit(s string) (float64, string, error) {
	if s == "" {
		return 1, "", nil
	}
	end := strings.IndexFunc(s, func(r rune) bool {
		return !strings.ContainsRune("0123456789.eE+-", r)
	})
	// An exponent marker followed by a letter starts the unit.
	for end > 0 && strings.ContainsRune("eE", rune(s[end-1])) {
		end--
	}
	num, unit := s, ""
	if end >= 0 {
		num, unit = s[:end], s[end:]
	}
	scale, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, "", err
	}
	return scale, unit, nil
}

// perfListNames returns the names of the extended CPU events perf list -j
// knows how to encode, in sorted order. If perf is not available, there are
// simply no extended events.
func perfListNames() []string {
	l, err := hostPerfList()
	if err != nil {
		return nil
	}
	return l.cpuNames
}
