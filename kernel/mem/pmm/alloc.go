package pmm

import (
	"gopheros/kernel"
	"gopheros/kernel/mem"
)

var errOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of physical memory"}

// AllocFrame reserves a single page frame, zeroes its contents through the
// HHDM and returns its physical address. It is the funnel every page-sized,
// page-aligned allocation request in the kernel (Go runtime bootstrap, HAT
// table allocation) goes through.
func AllocFrame() (mem.PhysAddr, *kernel.Error) {
	addr, ok := AllocFrames(1)
	if !ok {
		return 0, errOutOfMemory
	}

	zero(addr)
	return addr, nil
}

// FreeFrame returns a single page frame, identified by its direct-map
// virtual address, to the allocator. Callers that only have a Go pointer
// into the frame (e.g. the Go allocator's sysFree path) translate it back to
// a PhysAddr via the HHDM before calling this.
func FreeFrame(virt mem.VirtAddr) {
	FreeFrames(virt.ToPhysical(), 1)
}

// zero clears the frame at addr through its HHDM alias.
func zero(addr mem.PhysAddr) {
	kernel.Memset(uintptr(addr.ToVirtual()), 0, uintptr(mem.PageSize))
}
