// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

//go:embed testdata/pmufs
var testPMUFS embed.FS

//go:embed testdata/perf-list-j
var testPerfListJ []byte

func init() {
	// Switch to a baked-in fake PMU file system so we don't depend on the system.
	pmuDir = "testdata/pmufs"
	pmuFS, _ = fs.Sub(testPMUFS, pmuDir)

	// Stub the perf command with real data (albeit minimized).
	perfListHook = func(outBuf io.Writer) {
		outBuf.Write(testPerfListJ)
	}
}

func TestParseBuiltin(t *testing.T) {
	for _, tc := range getBuiltinTests() {
		// Test via parseBuiltinEvent
		gotBE, ok := resolveBuiltinEvent(tc.pmuName, tc.eventName)
		if !ok {
			gotBE = builtinEvent{^uint32(0), 0}
		}
		wantBE := builtinEvent{tc.pmu, tc.config}
		if wantBE != gotBE {
			t.Errorf("PMU %q, event %q: got %s, want %s", tc.pmuName, tc.eventName, gotBE, wantBE)
			// If this is messed up, skip ParseEvent.
			continue
		}

		// Test via ParseEvent.
		var eventName string
		if tc.pmuName != "" {
			eventName = tc.pmuName + "/" + tc.eventName + "/"
		} else {
			eventName = tc.eventName
		}
		gotEv, err := ParseEvent(eventName)
		var gotRE *rawEvent
		if err != nil {
			gotRE = &rawEvent{name: eventName, pmu: ^uint32(0)}
		} else {
			gotRE = gotEv.(*rawEvent)
		}
		wantRE := rawEvent{name: eventName, pmu: tc.pmu, config: tc.config, scale: 1}
		if wantRE != *gotRE {
			t.Errorf("%s: got %s (err %s), want %s", eventName, gotRE.detail(), err, wantRE.detail())
		}
	}
}

type builtinTest struct {
	pmuName   string
	eventName string

	pmu    uint32
	config uint64
}

func getBuiltinTests() []builtinTest {
	var tests []builtinTest

	bad := func(pmu, config string) {
		tests = append(tests,
			builtinTest{pmu, config, ^uint32(0), 0})
	}

	hw := func(config uint64, name string) {
		tests = append(tests,
			builtinTest{"cpu", name, unix.PERF_TYPE_HARDWARE, config},
			builtinTest{"", name, unix.PERF_TYPE_HARDWARE, config},
		)
		bad("xxx", name)
	}
	hw(unix.PERF_COUNT_HW_CPU_CYCLES, "cpu-cycles")
	hw(unix.PERF_COUNT_HW_CPU_CYCLES, "cycles")
	// "branches" could be interpreted as either
	// PERF_COUNT_HW_BRANCH_INSTRUCTIONS or PERF_COUNT_HW_CACHE_BPU, but perf
	// prefers to interpret as the former.
	hw(unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS, "branches")
	hw(unix.PERF_COUNT_HW_REF_CPU_CYCLES, "ref-cycles")

	sw := func(config uint64, name string) {
		tests = append(tests,
			builtinTest{"", name, unix.PERF_TYPE_SOFTWARE, config},
		)
		bad("cpu", name)
		bad("xxx", name)
	}
	sw(unix.PERF_COUNT_SW_CPU_CLOCK, "cpu-clock")
	sw(unix.PERF_COUNT_SW_CONTEXT_SWITCHES, "context-switches")
	sw(unix.PERF_COUNT_SW_CONTEXT_SWITCHES, "cs")

	cache := func(level, op, result uint64, names ...string) {
		config := level | (op << 8) | (result << 16)
		for _, name := range names {
			tests = append(tests,
				builtinTest{"cpu", name, unix.PERF_TYPE_HW_CACHE, config},
				builtinTest{"", name, unix.PERF_TYPE_HW_CACHE, config},
			)
			bad("xxx", name)
			bad("", name+"x")
			bad("", name+"-x")
			bad("", "x-"+name)
		}
	}
	cache(unix.PERF_COUNT_HW_CACHE_L1D, unix.PERF_COUNT_HW_CACHE_OP_READ, unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS,
		"L1-dcache", "l1d", "L1-dcache-read", "l1d-loads", "l1d-load-refs", "l1d-refs", "l1d-read-access")
	// Perf accepts this, but it's nonsense. The perf yacc grammar doesn't
	// distinguish between op and result, then the C parser gets confused and
	// stops at the second "-", but without an error.
	bad("", "l1d-loads-stores")
	cache(unix.PERF_COUNT_HW_CACHE_L1D, unix.PERF_COUNT_HW_CACHE_OP_PREFETCH, unix.PERF_COUNT_HW_CACHE_RESULT_MISS,
		"L1-dcache-prefetch-miss", "L1-dcache-speculative-load-misses")
	cache(unix.PERF_COUNT_HW_CACHE_BPU, unix.PERF_COUNT_HW_CACHE_OP_READ, unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS,
		"branch", "branches-loads", "bpu-read", "bpu-loads-refs", "bpu-Reference")
	bad("", "bpu-stores") // Disallowed combination

	return tests
}

func (ev builtinEvent) String() string {
	if ev.pmu == ^uint32(0) {
		return "<invalid>"
	}
	return fmt.Sprintf("{%#x, %#x}", ev.pmu, ev.config)
}

func (ev *rawEvent) detail() string {
	if ev.pmu == ^uint32(0) {
		return "<invalid>"
	}

	var s strings.Builder
	fmt.Fprintf(&s, "pmu%d/config=%#x", ev.pmu, ev.config)
	if ev.config1 != 0 {
		fmt.Fprintf(&s, ",config1=%#x", ev.config1)
	}
	if ev.config2 != 0 {
		fmt.Fprintf(&s, ",config2=%#x", ev.config2)
	}
	if ev.period != 0 {
		fmt.Fprintf(&s, ",period=%#x", ev.period)
	}
	s.WriteByte('/')
	return s.String()
}

func (ev *rawEvent) c1(val uint64) *rawEvent {
	ev.config1 = val
	return ev
}
func (ev *rawEvent) c2(val uint64) *rawEvent {
	ev.config2 = val
	return ev
}
func (ev *rawEvent) p(val uint64) *rawEvent {
	ev.period = val
	return ev
}
func (ev *rawEvent) su(scale float64, unit string) *rawEvent {
	ev.scale, ev.unit = scale, unit
	return ev
}

func TestParse(t *testing.T) {
	test := func(name string, want *rawEvent) {
		t.Helper()
		got, err := ParseEvent(name)
		if err != nil {
			t.Errorf("%s: want %s, got error %s", name, want.detail(), err)
			return
		}
		gotRE := got.(*rawEvent)
		want.name = name
		if *want != *gotRE {
			t.Errorf("%s: want %s, got %s", name, want.detail(), gotRE.detail())
		}
	}
	testErr := func(name string, want string) {
		t.Helper()
		got, err := ParseEvent(name)
		if err == nil {
			t.Errorf("%s: want error %s, got %s", name, want, got.(*rawEvent).detail())
			return
		}
			if err.Error() != want {
			t.Errorf("%s: want error %s, got error %s", name, want, err)
		}
	}
	hw := func(config uint64) *rawEvent {
		return &rawEvent{pmu: unix.PERF_TYPE_HARDWARE, config: config, scale: 1}
	}
	raw := func(config uint64) *rawEvent {
		return &rawEvent{pmu: unix.PERF_TYPE_RAW, config: config, scale: 1}
	}
	imc := func(config uint64) *rawEvent {
		return &rawEvent{pmu: 16, config: config, scale: 1}
	}

	// Perf prefers the built-in event even if there's one in /sys
	test("cpu/cpu-cycles/", hw(unix.PERF_COUNT_HW_CPU_CYCLES))
	test("cpu-cycles", hw(unix.PERF_COUNT_HW_CPU_CYCLES))
	// Test an event from /sys
	test("cpu/mem-stores/", raw(0xd0|0x82<<8))
	// Any CPU event can omit the PMU, even if it's not built-in
	test("mem-stores", raw(0xd0|0x82<<8))
	// Test parameters
	test("cpu/event=0xd0/", raw(0xd0))
	test("cpu/event=42/", raw(42))
	test("cpu/event=042/", raw(0o42))
	test("cpu/event=0xd0,config1=0xd1,config2=0xd2/", raw(0xd0).c1(0xd1).c2(0xd2))
	test("cpu/config=0xd0,config1=0xd1,config2=0xd2/", raw(0xd0).c1(0xd1).c2(0xd2))
	// Test mixing parameters and names.
	test("cpu/mem-stores,umask=42/", raw(0xd0|42<<8))
	test("cpu/umask=42,mem-stores/", raw(0xd0|42<<8))
	// Test a single bit field.
	test("cpu/edge=1/", raw(1<<18))
	test("cpu/edge/", raw(1<<18))
	// Test mixing single bit fields with event names.
	test("cpu/mem-stores,edge/", raw(0xd0|0x82<<8|1<<18))
	test("cpu/edge,mem-stores/", raw(0xd0|0x82<<8|1<<18))
	// Test mixing an event that's both built-in and in /sys with a /sys
	// parameter. Perf will generate a nonsense event for this with type
	// HARDWARE that mixes the fixed config enum with bits from /sys. We'll
	// instead find the event in /sys and use that.
	test("cpu/cpu-cycles,edge/", raw(0x3c|1<<18))

	// Test perf list -j events.
	test("l1d.replacement", raw(0x51|0x1<<8).p(0x186a3)) // cpu/event=0x51,period=0x186a3,umask=0x1/
	test("cpu/l1d.replacement/", raw(0x51|0x1<<8).p(0x186a3))
	test("uops_issued.any_p", raw(0xe|0x1<<8).p(0x1e8483))

	// Test a non-CPU PMU, including scale and unit.
	test("uncore_imc_0/cas_count_read/", imc(0x04|0x03<<8).su(6.103515625e-5, "MiB"))
	test("uncore_imc_0/clockticks/", imc(0))
	test("uncore_imc_0/event=0x1,umask=0x2/", imc(0x1|0x2<<8))
	testErr("uncore_imc_0/edge/", `event "uncore_imc_0/edge/": unknown event or parameter "edge"`)

	// Test unknown event
	testErr("bad", `unknown event "bad"`)
	testErr("cpu/bad/", `event "cpu/bad/": unknown event or parameter "bad"`)
	// Test unknown PMU
	testErr("bad/cpu-cycles/", `unknown PMU "bad"`)
	// Test parameter out of range
	testErr("cpu/event=0x1ff/", `event "cpu/event=0x1ff/": parameter event=511 not in range 0-255`)
	testErr("cpu/edge=2/", `event "cpu/edge=2/": parameter edge=2 not in range 0-1`)
	// Test unknown parameter
	testErr("cpu/bad=25/", `event "cpu/bad=25/": unknown event or parameter "bad"`)
	// Test multiple events
	testErr("cpu/cpu-cycles,mem-stores/", `event "cpu/cpu-cycles,mem-stores/": multiple events "cpu-cycles" and "mem-stores"`)
	// Test mixing built-in events (that aren't in /sys) with parameters from
	// /sys. Perf will accept these, but then use a built-in type with nonsense
	// bits set from the dynamic PMU configuration. We reject them.
	//
	// This error could be better.
	testErr("cpu/l1d,edge/", `event "cpu/l1d,edge/": unknown event or parameter "l1d"`)
	testErr("cpu/edge,l1d/", `event "cpu/edge,l1d/": unknown event or parameter "l1d"`)
	// Test malformed parameter lists
	testErr("cpu/event=abc/", `event "cpu/event=abc/": error parsing event param list "event=abc": parameter "event=abc" not a number`)
	testErr("cpu/one,two/", `event "cpu/one,two/": unknown event or parameter "one"`)
	testErr("cpu/=1/", `event "cpu/=1/": error parsing event param list "=1": missing parameter name in "=1"`)

	// TODO: Test formats with multiple bit ranges.
}

func TestParsePerfList(t *testing.T) {
	// Test that we can parse everything an example perf list -j.
	cpu, err := pmus.get("cpu")
	if err != nil {
		t.Fatal(err)
	}
	testParsePerfList(t, testPerfListJ, nil, nil, cpu)
}

func TestParsePerfListHost(t *testing.T) {
	// Test the output of perf list -j from the host perf command. The host's
	// CPU PMU may have formats the fake file system lacks, so only check that
	// the encodings parse.
	var outBuf bytes.Buffer
	var errBuf bytes.Buffer
	cmd := exec.Command("perf", "list", "-j")
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	if err != nil {
		t.Skipf("perf list -j: %v", err)
	}
	testParsePerfList(t, outBuf.Bytes(), errBuf.Bytes(), err, nil)
}

// Test parsing all of the events in perf list -j. If cpu is non-nil, also
// resolve each CPU event against it.
func testParsePerfList(t *testing.T, data, errOut []byte, err error, cpu *pmuDesc) {
	l, err := parsePerfList(data, errOut, err)
	if err != nil {
		if strings.Contains(err.Error(), "cannot enumerate extended events") {
			t.Skip(err)
		}
		t.Fatalf("failed to parse perf list -j JSON: %s", err)
	}
	for _, pj := range l.byName {
		if pj.Encoding == "" {
			// Most of these events are actually built-in, and for those that
			// aren't we'll bail before calling encode.
			continue
		}
		if pj.Unit != "cpu" {
			// We only look for perf list events under the CPU PMU.
			continue
		}
		if cpu == nil {
			if _, _, err := parsePMUEvent(pj.Encoding); err != nil {
				t.Errorf("failed to parse encoding of perf list -j event %#v:\n%s", pj, err)
			}
			continue
		}
		var ev rawEvent
		if err := pj.encode(cpu, &ev); err != nil {
			t.Errorf("failed to parse perf list -j event %#v:\n%s", pj, err)
		}
	}
}

func TestParseScaleUnit(t *testing.T) {
	for _, tc := range []struct {
		in    string
		scale float64
		unit  string
	}{
		{"", 1, ""},
		{"1", 1, ""},
		{"6.103515625e-5MiB", 6.103515625e-5, "MiB"},
		{"100%", 100, "%"},
		{"1e3ns", 1000, "ns"},
		{"64Bytes", 64, "Bytes"},
		{"2events", 2, "events"},
	} {
		scale, unit, err := parseScaleUnit(tc.in)
		if err != nil {
			t.Errorf("%q: %v", tc.in, err)
		} else if scale != tc.scale || unit != tc.unit {
			t.Errorf("%q: got %g %q, want %g %q", tc.in, scale, unit, tc.scale, tc.unit)
		}
	}
	if _, _, err := parseScaleUnit("MiB"); err == nil {
		t.Errorf("missing scale parsed")
	}
}

func TestParseComponentEvent(t *testing.T) {
	for _, tc := range []struct {
		pmu, name string
		want      string // PMU of the result, or error
	}{
		{"", "cycles", "cpu"},
		{"cpu", "cycles", "cpu"},
		{"cpu", "mem-stores", "cpu"},
		{"cpu", "l1d.replacement", "cpu"},
		{"software", "task-clock", "software"},
		{"uncore_imc_0", "cas_count_read", "uncore_imc_0"},
		{"cpu", "task-clock", `event "task-clock" is counted by PMU "software", not "cpu"`},
		{"software", "instructions", `event "instructions" is counted by PMU "cpu", not "software"`},
		{"uncore_imc_0", "mem-stores", `event "uncore_imc_0/mem-stores/": unknown event or parameter "mem-stores"`},
		{"bogus", "cycles", `unknown PMU "bogus"`},
	} {
		ev, err := ParseComponentEvent(tc.pmu, tc.name)
		var got string
		if err != nil {
			got = err.Error()
		} else if got, err = Component(ev); err != nil {
			t.Errorf("%s:%s: Component: %s", tc.pmu, tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s:%s: got %s, want %s", tc.pmu, tc.name, got, tc.want)
		}
	}
}

func TestKeyOf(t *testing.T) {
	a, err := ParseEvent("cpu-cycles")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseEvent("cycles")
	if err != nil {
		t.Fatal(err)
	}
	ka, err := KeyOf(a)
	if err != nil {
		t.Fatal(err)
	}
	kb, err := KeyOf(b)
	if err != nil {
		t.Fatal(err)
	}
	if ka != kb {
		t.Errorf("aliases have different keys: %s vs %s", ka, kb)
	}
	kc, err := KeyOf(EventInstructions)
	if err != nil {
		t.Fatal(err)
	}
	if ka == kc {
		t.Errorf("cycles and instructions have the same key %s", ka)
	}
}

func TestPMUName(t *testing.T) {
	for typ, want := range map[uint32]string{
		unix.PERF_TYPE_HARDWARE: "cpu",
		unix.PERF_TYPE_HW_CACHE: "cpu",
		unix.PERF_TYPE_RAW:      "cpu",
		unix.PERF_TYPE_SOFTWARE: "software",
		16:                      "uncore_imc_0",
	} {
		got, err := PMUName(typ)
		if err != nil {
			t.Errorf("type %d: %s", typ, err)
		} else if got != want {
			t.Errorf("type %d: got %s, want %s", typ, got, want)
		}
	}
	if _, err := PMUName(99); err == nil {
		t.Errorf("type 99: want error")
	}
}

func TestForEach(t *testing.T) {
	var names []Name
	seen := make(map[Name]bool)
	err := ForEach(func(n Name) bool {
		if seen[n] {
			t.Errorf("%s reported twice", n)
		}
		seen[n] = true
		names = append(names, n)
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []Name{
		{"cpu", "cycles"},
		{"cpu", "instructions"},
		{"cpu", "L1-dcache-loads"},
		{"cpu", "L1-dcache-load-misses"},
		{"cpu", "mem-stores"},
		{"cpu", "l1d.replacement"},
		{"software", "task-clock"},
		{"uncore_imc_0", "cas_count_read"},
	} {
		if !seen[want] {
			t.Errorf("missing %s", want)
		}
	}
	for _, exclude := range []Name{
		{"cpu", "iTLB-stores"},
		{"cpu", "uops_issued.any_p"},
		{"cpu", "unc_m_cas_count.rd"},
		{"uncore_imc_0", "cas_count_read.scale"},
	} {
		if seen[exclude] {
			t.Errorf("unexpected %s", exclude)
		}
	}

	// Every reported name must parse back to its PMU.
	for _, n := range names {
		ev, err := ParseComponentEvent(n.PMU, n.Event)
		if err != nil {
			t.Errorf("%s: %s", n, err)
		} else if _, err := KeyOf(ev); err != nil {
			t.Errorf("%s: %s", n, err)
		}
	}

	// Stopping early.
	count := 0
	if err := ForEach(func(Name) bool { count++; return count < 3 }); err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("ForEach kept going after false: %d calls", count)
	}
}

func TestNameEncoding(t *testing.T) {
	for n, want := range map[Name]string{
		{"", "cycles"}:                     "cycles",
		{"cpu", "mem-stores"}:              "mem-stores",
		{"software", "cs"}:                 "cs",
		{"uncore_imc_0", "cas_count_read"}: "uncore_imc_0/cas_count_read/",
	} {
		if got := n.Encoding(); got != want {
			t.Errorf("%#v: got %s, want %s", n, got, want)
		}
	}
}
