package mem

import "gopheros/kernel"

// PhysAddr is a physical memory address. It is a transparent wrapper over a
// pointer-sized unsigned integer; arithmetic with byte offsets preserves the
// PhysAddr type.
type PhysAddr uintptr

// VirtAddr is a virtual (CPU-visible) memory address.
type VirtAddr uintptr

var (
	// hhdmBase is the higher-half direct map base address: for every
	// usable physical address P, P is also reachable at hhdmBase + P.
	// It is written exactly once, by the bootstrapping CPU, before any
	// PMM or HAT operation takes place.
	hhdmBase VirtAddr

	// hhdmPublished guards against reading hhdmBase before it has been
	// established, and against publishing it more than once.
	hhdmPublished bool

	errHHDMNotPublished = &kernel.Error{Module: "mem", Message: "HHDM base read before it was published"}
	errHHDMRepublished  = &kernel.Error{Module: "mem", Message: "HHDM base published more than once"}
)

// PublishHHDMBase records the direct-map base address reported by the boot
// protocol. It must be called exactly once, before any other package in this
// tree dereferences a PhysAddr. A second call panics; this is intentional:
// the HHDM base is process-wide read-mostly state and a second publication
// would indicate a logic error in early init, not a condition to recover
// from.
func PublishHHDMBase(base VirtAddr) {
	if hhdmPublished {
		panic(errHHDMRepublished)
	}

	hhdmBase = base
	hhdmPublished = true
}

// HHDMBase returns the published direct-map base. It panics if called before
// PublishHHDMBase.
func HHDMBase() VirtAddr {
	if !hhdmPublished {
		panic(errHHDMNotPublished)
	}

	return hhdmBase
}

// PublishHHDMBaseForTest installs a direct-map base for use by package tests
// that exercise PMM/HAT code against plain Go-allocated memory instead of a
// real physical address space. It bypasses the single-publication guard.
func PublishHHDMBaseForTest(base VirtAddr) {
	hhdmBase = base
	hhdmPublished = true
}

// ResetHHDMForTest clears the published HHDM base so a subsequent test can
// republish it without tripping the single-publication guard.
func ResetHHDMForTest() {
	hhdmBase = 0
	hhdmPublished = false
}

// ToVirtual translates a physical address into its direct-map virtual
// address. The mapping is only meaningful for addresses inside
// [0, ram_size) as reported by the boot memory map; callers outside that
// range get a nonsensical but non-fatal result, matching the "HHDM base of 0
// is permitted" boundary case: this package never special-cases the zero
// address.
func (p PhysAddr) ToVirtual() VirtAddr {
	return VirtAddr(uintptr(HHDMBase()) + uintptr(p))
}

// Add returns p+n, preserving the PhysAddr type.
func (p PhysAddr) Add(n uintptr) PhysAddr {
	return PhysAddr(uintptr(p) + n)
}

// AlignDown rounds p down to the nearest multiple of align, which must be a
// power of two.
func (p PhysAddr) AlignDown(align uintptr) PhysAddr {
	return PhysAddr(uintptr(p) &^ (align - 1))
}

// AlignUp rounds p up to the nearest multiple of align, which must be a
// power of two.
func (p PhysAddr) AlignUp(align uintptr) PhysAddr {
	return PhysAddr((uintptr(p) + align - 1) &^ (align - 1))
}

// ToPhysical translates a direct-map virtual address back to the physical
// address it maps. Only valid for addresses obtained from
// PhysAddr.ToVirtual; behavior for any other address is undefined (per the
// spec, conversion between PhysAddr and VirtAddr is only defined via the
// HHDM window).
func (v VirtAddr) ToPhysical() PhysAddr {
	return PhysAddr(uintptr(v) - uintptr(HHDMBase()))
}

// Add returns v+n, preserving the VirtAddr type.
func (v VirtAddr) Add(n uintptr) VirtAddr {
	return VirtAddr(uintptr(v) + n)
}

// AlignDown rounds v down to the nearest multiple of align, which must be a
// power of two.
func (v VirtAddr) AlignDown(align uintptr) VirtAddr {
	return VirtAddr(uintptr(v) &^ (align - 1))
}

// AlignUp rounds v up to the nearest multiple of align, which must be a
// power of two.
func (v VirtAddr) AlignUp(align uintptr) VirtAddr {
	return VirtAddr((uintptr(v) + align - 1) &^ (align - 1))
}
