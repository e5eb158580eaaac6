// Package vm implements the paging manager: one page directory plus the
// three page tables it can point at (kernel low memory, a single user
// page table reused for small-page remaps, and a video-alias page table).
// It owns every PDE/PTE mutation in the kernel and is the only package
// that touches the simulated control registers.
package vm

import (
	"fmt"
	"sync"
	"unsafe"

	"n391kernel/src/defs"
	"n391kernel/src/mem"
)

// CPU abstracts the control-register and TLB operations a real x86 core
// would perform. The kernel has exactly one of these; tests substitute a
// recording fake so paging logic is verifiable without real hardware.
// Design note: the synthetic "load CR3 / set CR4.PSE / set CR0.PG" dance
// and the TLB flush are the only architecture-specific operations paging
// needs, so they are the only ones behind this seam.
type CPU interface {
	LoadCR3(pa mem.Pa_t)
	EnablePSE()
	EnablePaging()
	FlushTLB()
}

// PagingManager owns the page directory and its three page tables. All
// mutation happens with Lock held, standing in for the "interrupts
// disabled around every table mutation" rule in the spec's concurrency
// model: a reader must never observe a half-written PDE.
type PagingManager struct {
	sync.Mutex

	dir        mem.Pmap_t
	lowTable   mem.Pmap_t // identity-mapped low 4MiB, video page present
	userTable  mem.Pmap_t // reused by RemapWithUserTable(Page)
	videoTable mem.Pmap_t // reused by RemapVideoWithTable

	cpu CPU
}

// videoPage is the page-table index of 0xB8000 within the first 4MiB.
const videoPage = 0xB8000 / 4096

func New(cpu CPU) *PagingManager {
	return &PagingManager{cpu: cpu}
}

// Init identity-maps the first 4MiB as not-present 4KiB pages except for
// the text-mode video page, maps the kernel's own 4MiB as a present large
// page at virtual 4MiB, and turns paging on.
func (pm *PagingManager) Init() {
	pm.Lock()
	defer pm.Unlock()

	for i := range pm.dir {
		pm.dir[i] = 0x2 // supervisor, writable, not present
	}
	for i := range pm.lowTable {
		pm.lowTable[i] = uint32(i*mem.PGSIZE) | 0x2
	}
	pm.lowTable[videoPage] |= uint32(mem.PTE_P | mem.PTE_W)

	pm.dir[0] = lowWord(&pm.lowTable) | 0x3 // present, writable, supervisor
	pm.dir[defs.KernelVirt/mem.LPGSIZE] = uint32(defs.KernelVirt) |
		uint32(mem.PTE_P|mem.PTE_W|mem.PTE_PS) | 0x80

	pm.cpu.LoadCR3(mem.Pa_t(dirAddr(&pm.dir)))
	pm.cpu.EnablePSE()
	pm.cpu.EnablePaging()
}

// Remap replaces the PDE covering virt with a present, user-accessible,
// writable 4MiB page backed by phys. virt must be 4MiB aligned.
func (pm *PagingManager) Remap(virt mem.Va_t, phys mem.Pa_t) error {
	pde, err := pdeIndex(virt)
	if err != nil {
		return err
	}
	pm.Lock()
	pm.dir[pde] = uint32(phys) | uint32(mem.PTE_P|mem.PTE_U|mem.PTE_W|mem.PTE_PS)
	pm.Unlock()
	pm.FlushTLB()
	return nil
}

// RemapWithUserTable installs the user page table at virt's PDE and maps
// phys at its first PTE.
func (pm *PagingManager) RemapWithUserTable(virt mem.Va_t, phys mem.Pa_t) error {
	return pm.RemapWithUserTablePage(virt, phys, 0)
}

// RemapWithUserTablePage is RemapWithUserTable generalized to an arbitrary
// PTE index within the user page table.
func (pm *PagingManager) RemapWithUserTablePage(virt mem.Va_t, phys mem.Pa_t, pageIndex int) error {
	pde, err := pdeIndex(virt)
	if err != nil {
		return err
	}
	if pageIndex < 0 || pageIndex >= len(pm.userTable) {
		return fmt.Errorf("vm: page index %d out of range", pageIndex)
	}
	pm.Lock()
	pm.dir[pde] = lowWord(&pm.userTable) | uint32(mem.PTE_P|mem.PTE_U|mem.PTE_W)
	pm.userTable[pageIndex] = uint32(phys) | uint32(mem.PTE_P|mem.PTE_U|mem.PTE_W)
	pm.Unlock()
	pm.FlushTLB()
	return nil
}

// RemapVideoWithTable is RemapWithUserTable, but uses the dedicated
// video-alias page table so the user page table's mapping is undisturbed.
func (pm *PagingManager) RemapVideoWithTable(virt mem.Va_t, phys mem.Pa_t) error {
	pde, err := pdeIndex(virt)
	if err != nil {
		return err
	}
	pm.Lock()
	pm.dir[pde] = lowWord(&pm.videoTable) | uint32(mem.PTE_P|mem.PTE_U|mem.PTE_W)
	pm.videoTable[0] = uint32(phys) | uint32(mem.PTE_P|mem.PTE_U|mem.PTE_W)
	pm.Unlock()
	pm.FlushTLB()
	return nil
}

// VideoPTE returns entry i of the video-alias page table.
func (pm *PagingManager) VideoPTE(i int) uint32 {
	pm.Lock()
	defer pm.Unlock()
	return pm.videoTable[i]
}

func (pm *PagingManager) FlushTLB() {
	pm.cpu.FlushTLB()
}

func pdeIndex(virt mem.Va_t) (uint32, error) {
	if uintptr(virt)%uintptr(mem.LPGSIZE) != 0 {
		return 0, fmt.Errorf("vm: virt %#x is not 4MiB aligned", virt)
	}
	return uint32(uintptr(virt) / uintptr(mem.LPGSIZE)), nil
}

func lowWord(pm *mem.Pmap_t) uint32 {
	return uint32(dirAddr(pm))
}

// dirAddr returns the address of a page table as the PagingManager would
// see it on real hardware: its own backing memory is the "physical" page.
func dirAddr(pm *mem.Pmap_t) uintptr {
	return uintptr(unsafe.Pointer(pm))
}
