package hat

import (
	"gopheros/kernel"
	"gopheros/kernel/mem"
)

// The process-wide kernel address space (the one used while bootstrapping
// the Go runtime's own heap in kernel/goruntime, and for any mapping that
// must be visible from every address space) is published by the
// architecture-specific Init in hat_amd64.go/hat_riscv64.go and read back
// through KernelHat; there is no separate singleton here.

// earlyRegionBase is the start of a scratch virtual-address range handed
// out page-by-page to callers that need address space reserved before a
// general virtual-memory-area allocator exists — currently only the Go
// runtime bootstrap in kernel/goruntime. It is chosen well above the HHDM
// window and the kernel image's own load addresses so it cannot collide
// with either.
const earlyRegionBase mem.VirtAddr = 0xffff_ff00_0000_0000

var (
	earlyRegionNext         = earlyRegionBase
	errEarlyRegionExhausted = &kernel.Error{Module: "hat", Message: "early virtual address region exhausted"}
)

// ReserveRegion hands out the next size bytes (rounded up to a page) of the
// early scratch virtual-address range and returns its start. It reserves
// address space only; no translation exists until the caller also calls
// KernelHat().MapPages for the returned range.
func ReserveRegion(size uintptr) (mem.VirtAddr, *kernel.Error) {
	aligned := (size + uintptr(mem.PageSize) - 1) &^ (uintptr(mem.PageSize) - 1)
	if aligned == 0 {
		aligned = uintptr(mem.PageSize)
	}

	start := earlyRegionNext
	next := start.Add(aligned)
	if next < start {
		return 0, errEarlyRegionExhausted
	}

	earlyRegionNext = next
	return start, nil
}

// ResetEarlyRegionForTest rewinds the early-region bump pointer so package
// tests can exercise ReserveRegion deterministically across runs.
func ResetEarlyRegionForTest() {
	earlyRegionNext = earlyRegionBase
}
