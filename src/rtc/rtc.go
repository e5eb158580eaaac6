// Package rtc simulates the real-time clock: register A/B state reduced
// to a single shared interrupt rate (there is only one physical RTC),
// and a per-terminal "interrupt occurred" latch consumed independently
// by each terminal's rtc_read.
package rtc

import (
	"sync"

	"n391kernel/src/defs"
	"n391kernel/src/proc"
	"n391kernel/src/util"
)

// Device is the simulated RTC shared by all three terminals. Only one
// rate is in effect at a time, exactly as on real hardware where
// register A is a single shared register: whichever terminal last wrote
// a rate wins for everyone, matching original_source/rtc.c.
type Device struct {
	mu       sync.Mutex
	rateHz   int
	occurred [3]bool
	cond     *sync.Cond
}

// New returns a Device defaulting to 2Hz, the original's boot rate.
func New() *Device {
	d := &Device{rateHz: 2}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// RateHz returns the currently configured shared interrupt rate.
func (d *Device) RateHz() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rateHz
}

// Tick fires the simulated RTC interrupt: it latches "occurred" for
// every terminal and wakes every blocked reader, matching the original's
// rtc_interrupt_handler setting rtc_interrupt_occurred for all three
// terminals on every real interrupt regardless of which terminal asked
// for which rate.
func (d *Device) Tick() {
	d.mu.Lock()
	for i := range d.occurred {
		d.occurred[i] = true
	}
	d.cond.Broadcast()
	d.mu.Unlock()
}

func isValidRate(hz int) bool {
	if hz < 2 || hz > 1024 {
		return false
	}
	return hz&(hz-1) == 0
}

// SetRate validates and installs hz as the shared interrupt rate.
func (d *Device) SetRate(hz int) defs.Err_t {
	if !isValidRate(hz) {
		return defs.EINVAL
	}
	d.mu.Lock()
	d.rateHz = hz
	d.mu.Unlock()
	return 0
}

// Open resets the rate to 2Hz, as original_source/rtc.c's rtc_open
// does, and returns the vtable bound to termID's own latch.
func (d *Device) Open(termID int) proc.FileOps {
	d.SetRate(2)
	return &rtcOps{d: d, termID: termID}
}

type rtcOps struct {
	d      *Device
	termID int
}

func (o *rtcOps) Read(fd *proc.Fd, buf []byte) (int, defs.Err_t) {
	o.d.mu.Lock()
	for !o.d.occurred[o.termID] {
		o.d.cond.Wait()
	}
	o.d.occurred[o.termID] = false
	o.d.mu.Unlock()
	return 0, 0
}

// Write accepts only a 4-byte little-endian frequency, matching the
// original's exact-4-bytes contract.
func (o *rtcOps) Write(fd *proc.Fd, buf []byte) (int, defs.Err_t) {
	if len(buf) != 4 {
		return -1, defs.EINVAL
	}
	freq := int32(util.Readn32(buf, 0))
	if err := o.d.SetRate(int(freq)); err != 0 {
		return -1, err
	}
	return 4, 0
}

// Close resets the shared rate back to 2Hz.
func (o *rtcOps) Close(fd *proc.Fd) defs.Err_t {
	o.d.SetRate(2)
	return 0
}
