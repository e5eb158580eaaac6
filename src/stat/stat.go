// Package stat exposes two pseudo-files with no backing directory
// entry, in the original's treatment of "rtc": D_STAT, a text snapshot
// of scheduler-fairness and per-process syscall counters, and D_PROF, a
// pprof profile of the same counters for tooling that already speaks
// that format. Grounded on biscuit's src/stat and src/stats counter
// style (Counter_t, Stats2String), generalized from file-stat fields and
// build-tag-gated counting to always-on kernel accounting reachable
// through the syscall table instead of a compile-time flag.
package stat

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/pprof/profile"

	"n391kernel/src/defs"
	"n391kernel/src/proc"
	"n391kernel/src/sysc"
)

// callNames mirrors sysc's call constants in order, for labeling both
// the text snapshot and the pprof sample labels.
var callNames = [...]string{
	0:                    "",
	sysc.CallHalt:        "halt",
	sysc.CallExecute:     "execute",
	sysc.CallRead:        "read",
	sysc.CallWrite:       "write",
	sysc.CallOpen:        "open",
	sysc.CallClose:       "close",
	sysc.CallGetargs:     "getargs",
	sysc.CallVidmap:      "vidmap",
	sysc.CallSetHandler:  "set_handler",
	sysc.CallSigreturn:   "sigreturn",
}

// TickProvider reports how many scheduler ticks each terminal has
// received. sched.Scheduler satisfies this structurally, the same
// pattern as sched.ForegroundProvider and blue.ImageSource.
type TickProvider interface {
	Ticks() [3]int
}

// Counters is the kernel-wide accounting sink backing D_STAT and
// D_PROF. sysc.Executor reports every dispatched call here through
// Record, so Counters implements sysc.SyscallRecorder.
type Counters struct {
	ticks TickProvider

	mu    sync.Mutex
	calls [defs.MaxProcs][len(callNames)]int64
}

// New returns a Counters reading terminal fairness data from ticks.
func New(ticks TickProvider) *Counters {
	return &Counters{ticks: ticks}
}

// Record implements sysc.SyscallRecorder: one call dispatched against
// procNum.
func (c *Counters) Record(procNum, call int) {
	if procNum < 0 || procNum >= defs.MaxProcs {
		return
	}
	if call < 0 || call >= len(callNames) {
		return
	}
	c.mu.Lock()
	c.calls[procNum][call]++
	c.mu.Unlock()
}

// snapshot is a consistent copy of the counters, taken once under lock
// so D_STAT's text and D_PROF's profile always describe the same
// instant.
type snapshot struct {
	ticks [3]int
	calls [defs.MaxProcs][len(callNames)]int64
}

func (c *Counters) snapshotLocked() snapshot {
	s := snapshot{calls: c.calls}
	if c.ticks != nil {
		s.ticks = c.ticks.Ticks()
	}
	return s
}

func (c *Counters) take() snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Text renders the snapshot in the style of biscuit's Stats2String: one
// line of per-terminal tick counts (always present, zeros included),
// then one labeled line per process with any nonzero call count, listing
// only its nonzero calls.
func (s snapshot) Text() string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "term0_ticks=%d term1_ticks=%d term2_ticks=%d\n",
		s.ticks[0], s.ticks[1], s.ticks[2])
	for slot, counts := range s.calls {
		var total int64
		for _, n := range counts {
			total += n
		}
		if total == 0 {
			continue
		}
		fmt.Fprintf(&b, "proc%d", slot)
		for call, n := range counts {
			if n == 0 || callNames[call] == "" {
				continue
			}
			fmt.Fprintf(&b, " %s=%d", callNames[call], n)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Profile renders the snapshot as a pprof counter profile: one sample
// per terminal carrying its scheduler tick count, plus one sample per
// (process, call) pair with a nonzero count, so a
// standard pprof tool can view it without understanding this kernel's
// own text format.
func (s snapshot) Profile() *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "calls", Unit: "count"}},
	}
	for t, n := range s.ticks {
		p.Sample = append(p.Sample, &profile.Sample{
			Value: []int64{int64(n)},
			Label: map[string][]string{"kind": {"scheduler_tick"}, "terminal": {fmt.Sprint(t)}},
		})
	}
	for slot, counts := range s.calls {
		for call, n := range counts {
			if n == 0 || callNames[call] == "" {
				continue
			}
			p.Sample = append(p.Sample, &profile.Sample{
				Value: []int64{n},
				Label: map[string][]string{"kind": {"syscall"}, "proc": {fmt.Sprint(slot)}, "call": {callNames[call]}},
			})
		}
	}
	return p
}

// statOps is the read-only vtable D_STAT installs: one full snapshot
// taken at open time, read out as plain text in fd-sized chunks.
type statOps struct {
	body []byte
}

func (o *statOps) Read(fd *proc.Fd, buf []byte) (int, defs.Err_t) {
	if fd.FilePosition >= uint32(len(o.body)) {
		return 0, 0
	}
	n := copy(buf, o.body[fd.FilePosition:])
	fd.FilePosition += uint32(n)
	return n, 0
}

func (o *statOps) Write(fd *proc.Fd, buf []byte) (int, defs.Err_t) { return -1, defs.EINVAL }
func (o *statOps) Close(fd *proc.Fd) defs.Err_t                    { return 0 }

// OpenStat is registered under defs.D_STAT's name via
// sysc.Executor.RegisterPseudoFile.
func (c *Counters) OpenStat(termID int) proc.FileOps {
	return &statOps{body: []byte(c.take().Text())}
}

// OpenProf is registered under defs.D_PROF's name. The profile is
// serialized (gzip-compressed pprof proto, profile.Profile.Write's
// wire format) once at open time, same snapshot-at-open contract as
// OpenStat.
func (c *Counters) OpenProf(termID int) proc.FileOps {
	var buf bytes.Buffer
	if err := c.take().Profile().Write(&buf); err != nil {
		return &statOps{body: nil}
	}
	return &statOps{body: buf.Bytes()}
}
