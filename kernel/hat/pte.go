package hat

import "gopheros/kernel/mem"

// PteFlags is a bitmask of page-table-entry attribute bits. The meaning of
// each bit is architecture-specific; callers obtain the flags they need from
// the published MmuInfo (NXBit, pte flags per level, ProtMap) rather than
// hard-coding bit values.
type PteFlags uint64

// HasFlags returns true if all of the given flags are set.
func (f PteFlags) HasFlags(flags PteFlags) bool {
	return f&flags == flags
}

// Pte is a single 64-bit page-table entry. Its address field occupies the
// bits selected by the published MmuInfo.AddrMask; every other bit belongs
// to PteFlags.
type Pte uint64

// NewPte builds a page-table entry pointing at addr with the given flags.
func NewPte(addr mem.PhysAddr, flags PteFlags) Pte {
	return Pte(uint64(addr)&uint64(info.AddrMask) | uint64(flags))
}

// Addr returns the physical address a present entry points to: either the
// frame it maps (a leaf) or the next-level table (an intermediate entry).
func (p Pte) Addr() mem.PhysAddr {
	return mem.PhysAddr(uint64(p) & uint64(info.AddrMask))
}

// Flags returns the attribute bits of the entry.
func (p Pte) Flags() PteFlags {
	return PteFlags(uint64(p) &^ uint64(info.AddrMask))
}

// Present reports whether the entry is marked present.
func (p Pte) Present() bool {
	return p.Flags().HasFlags(info.PresentBit)
}

// Huge reports whether a present entry at an intermediate level maps a huge
// page rather than pointing at a child table.
func (p Pte) Huge() bool {
	return p.Flags()&info.LeafBits != 0
}
