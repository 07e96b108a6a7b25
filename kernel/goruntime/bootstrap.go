// Package goruntime contains code for bootstrapping Go runtime features such
// as the memory allocator, before which `make`/`new`/map literals and
// interface values are unusable.
package goruntime

import (
	"gopheros/kernel"
	"gopheros/kernel/hat"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"unsafe"
)

var (
	// mapFn is resolved through hat.KernelHat() at call time rather than
	// bound as a method value at package-init time, since the kernel Hat
	// is not published yet when this var block runs.
	mapFn                = func(v mem.VirtAddr, p mem.PhysAddr, size uintptr, ps hat.PageSize, prot hat.Prot) error {
		return hat.KernelHat().MapPages(v, p, size, ps, prot)
	}
	earlyReserveRegionFn = hat.ReserveRegion
	frameAllocFn         = pmm.AllocFrame
	memsetFn             = memset
	mallocInitFn         = mallocInit
	algInitFn            = algInit
	modulesInitFn        = modulesInit
	typeLinksInitFn      = typeLinksInit
	itabsInitFn          = itabsInit

	// A seed for the pseudo-random number generator used by getRandomData.
	prngSeed = 0xdeadc0de
)

//go:linkname algInit runtime.alginit
func algInit()

//go:linkname modulesInit runtime.modulesinit
func modulesInit()

//go:linkname typeLinksInit runtime.typelinksinit
func typeLinksInit()

//go:linkname itabsInit runtime.itabsinit
func itabsInit()

//go:linkname mallocInit runtime.mallocinit
func mallocInit()

//go:linkname mSysStatInc runtime.mSysStatInc
func mSysStatInc(*uint64, uintptr)

// memset sets size bytes starting at addr to val; callers pass 0 to zero the
// region. The Go allocator requires that
// every span it receives from sysAlloc starts out zeroed.
func memset(addr uintptr, val byte, size mem.Size) {
	dst := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	for i := range dst {
		dst[i] = val
	}
}

// sysReserve reserves address space without allocating any memory or
// establishing any page mappings.
//
// This function replaces runtime.sysReserve and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysReserve
//go:nosplit
func sysReserve(_ unsafe.Pointer, size uintptr, reserved *bool) unsafe.Pointer {
	regionStartAddr, err := earlyReserveRegionFn(size)
	if err != nil {
		panic(err)
	}

	*reserved = true
	return unsafe.Pointer(uintptr(regionStartAddr))
}

// sysMap establishes a mapping for a memory region previously reserved via
// sysReserve, backing it with freshly allocated, zeroed physical frames.
// The teacher's copy-on-write lazy-mapping trick for this call is not
// reproduced here: it depends on a page-fault handler recovering a CoW
// fault, which sits in the vmm/fault-handling layer this spec's core does
// not include (trap dispatch only carries the framework, see spec.md
// §4.4's "Dispatcher contract" — no registered page-fault handler exists
// yet). Eager backing keeps sysMap correct without that machinery.
//
// This function replaces runtime.sysMap and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysMap
//go:nosplit
func sysMap(virtAddr unsafe.Pointer, size uintptr, reserved bool, sysStat *uint64) unsafe.Pointer {
	if !reserved {
		panic("sysMap should only be called with reserved=true")
	}

	regionStart := mem.VirtAddr(uintptr(virtAddr)).AlignUp(uintptr(mem.PageSize))
	regionSize := (mem.Size(size) + mem.PageSize - 1) &^ (mem.PageSize - 1)
	pageCount := uintptr(regionSize) >> mem.PageShift

	page := regionStart
	for ; pageCount > 0; pageCount, page = pageCount-1, page.Add(uintptr(mem.PageSize)) {
		frame, err := frameAllocFn()
		if err != nil {
			return unsafe.Pointer(uintptr(0))
		}
		if err := mapFn(page, frame, uintptr(mem.PageSize), hat.Size4KiB, hat.ProtWrite); err != nil {
			return unsafe.Pointer(uintptr(0))
		}
	}

	mSysStatInc(sysStat, uintptr(regionSize))
	return unsafe.Pointer(uintptr(regionStart))
}

// sysAlloc reserves enough physical frames to satisfy the allocation
// request and establishes a contiguous virtual page mapping for them,
// returning a pointer to the start of the mapped region.
//
// This function replaces runtime.sysAlloc and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysAlloc
//go:nosplit
func sysAlloc(size uintptr, sysStat *uint64) unsafe.Pointer {
	regionSize := (mem.Size(size) + mem.PageSize - 1) &^ (mem.PageSize - 1)
	regionStartAddr, err := earlyReserveRegionFn(uintptr(regionSize))
	if err != nil {
		return unsafe.Pointer(uintptr(0))
	}

	pageCount := uintptr(regionSize) >> mem.PageShift
	page := regionStartAddr
	for ; pageCount > 0; pageCount, page = pageCount-1, page.Add(uintptr(mem.PageSize)) {
		frame, err := frameAllocFn()
		if err != nil {
			return unsafe.Pointer(uintptr(0))
		}

		if err := mapFn(page, frame, uintptr(mem.PageSize), hat.Size4KiB, hat.ProtWrite); err != nil {
			return unsafe.Pointer(uintptr(0))
		}
		memsetFn(uintptr(page), 0, mem.PageSize)
	}

	mSysStatInc(sysStat, uintptr(regionSize))
	return unsafe.Pointer(uintptr(regionStartAddr))
}

// nanotime returns a monotonically increasing clock value. This is a dummy
// implementation and will be replaced when a timekeeper package exists.
//
// This function replaces runtime.nanotime and is invoked by the Go allocator
// when a span allocation is performed.
//
//go:redirect-from runtime.nanotime
//go:nosplit
func nanotime() uint64 {
	// Dummy loop to prevent the compiler from inlining this function.
	for i := 0; i < 100; i++ {
	}
	return 1
}

// getRandomData populates r with pseudo-random data. The runtime normally
// reads this from /dev/random; with no hosted OS underneath, a simple PRNG
// stands in.
//
//go:redirect-from runtime.getRandomData
func getRandomData(r []byte) {
	for i := 0; i < len(r); i++ {
		prngSeed = (prngSeed * 58321) + 11113
		r[i] = byte((prngSeed >> 16) & 255)
	}
}

// Init enables support for various Go runtime features. After a call to
// Init the following become available:
//  - heap memory allocation (new, make, etc)
//  - map primitives
//  - interfaces
func Init() *kernel.Error {
	mallocInitFn()
	algInitFn()       // set up the hash implementation for map keys
	modulesInitFn()   // provides activeModules
	typeLinksInitFn() // uses maps, activeModules
	itabsInitFn()     // uses activeModules

	return nil
}

func init() {
	// Dummy calls so the compiler does not optimize away the functions in
	// this file before they are linked against via //go:linkname.
	var (
		reserved bool
		stat     uint64
		zeroPtr  = unsafe.Pointer(uintptr(0))
	)

	sysReserve(zeroPtr, 0, &reserved)
	sysMap(zeroPtr, 0, reserved, &stat)
	sysAlloc(0, &stat)
	getRandomData(nil)
	stat = nanotime()
}
