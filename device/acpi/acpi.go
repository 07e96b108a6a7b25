// +build amd64

// Package acpi is the thin glue the core supplies to an external ACPI/AML
// implementation (spec §1 "OUT OF SCOPE": "ACPI/AML interpreter: external
// library providing namespace traversal; core only supplies
// physical→virtual translation and raw port I/O"). It does not parse AML,
// walk the ACPI namespace, or understand any table beyond the RSDP needed
// to hand a root pointer to that external library — those remain the
// external collaborator's job. Grounded on the Rust original's
// `laihost_*` callback set (`drivers/acpi/lai.rs`): map/unmap and
// outb/inw/ind-family port accessors are exactly the surface a bound AML
// library calls back into the kernel for.
package acpi

import (
	"gopheros/kernel"
	"gopheros/kernel/cpu"
	"gopheros/kernel/mem"
	"unsafe"
)

var errMissingRSDP = &kernel.Error{Module: "acpi", Message: "could not locate ACPI RSDP in the BIOS area"}

var (
	// The RSDP is required to live in this physical range, aligned to a
	// 16-byte boundary (ACPI spec §5.2.5.1). Variables, not constants,
	// so tests can redirect the scan at a synthetic buffer instead of
	// real BIOS memory.
	rsdpLocationLow mem.PhysAddr = 0xe0000
	rsdpLocationHi  mem.PhysAddr = 0xfffff
	rsdpAlignment   uintptr      = 16
)

const acpiRev1 uint8 = 0

var rsdpSignature = [8]byte{'R', 'S', 'D', ' ', 'P', 'T', 'R', ' '}

// rsdpDescriptor is the ACPI 1.0 Root System Description Pointer layout.
type rsdpDescriptor struct {
	Signature [8]byte
	Checksum  uint8
	OEMID     [6]byte
	Revision  uint8
	RSDTAddr  uint32
}

// extRSDPDescriptor extends rsdpDescriptor with the ACPI 2.0+ fields,
// including the 64-bit XSDT address.
type extRSDPDescriptor struct {
	rsdpDescriptor
	Length      uint32
	XSDTAddr    uint64
	ExtChecksum uint8
	reserved    [3]byte
}

// LocateRSDT scans the BIOS read-only area for a valid RSDP and returns the
// physical address of the table it points to (RSDT on ACPI 1.0, XSDT on
// ACPI 2.0+) plus whether that table is an XSDT.
func LocateRSDT() (addr mem.PhysAddr, useXSDT bool, err *kernel.Error) {
checkNextBlock:
	for cur := rsdpLocationLow; cur < rsdpLocationHi; cur = cur.Add(rsdpAlignment) {
		virt := cur.ToVirtual()
		rsdp := (*rsdpDescriptor)(unsafe.Pointer(uintptr(virt)))

		for i, b := range rsdpSignature {
			if rsdp.Signature[i] != b {
				continue checkNextBlock
			}
		}

		if rsdp.Revision == acpiRev1 {
			if !validChecksum(virt, uint32(unsafe.Sizeof(*rsdp))) {
				continue
			}
			return mem.PhysAddr(rsdp.RSDTAddr), false, nil
		}

		rsdp2 := (*extRSDPDescriptor)(unsafe.Pointer(uintptr(virt)))
		if !validChecksum(virt, rsdp2.Length) {
			continue
		}
		return mem.PhysAddr(rsdp2.XSDTAddr), true, nil
	}

	return 0, false, errMissingRSDP
}

// validChecksum reports whether the bytes of an ACPI table sum to zero mod
// 256, as the ACPI spec requires of every table header.
func validChecksum(virt mem.VirtAddr, length uint32) bool {
	var sum uint8
	base := uintptr(virt)
	for i := uint32(0); i < length; i++ {
		sum += *(*uint8)(unsafe.Pointer(base + uintptr(i)))
	}
	return sum == 0
}

// Map is the physical→virtual translation primitive an external ACPI/AML
// implementation calls back into (the Rust original's `laihost_map`).
// Every usable physical address is already resident in the HHDM window, so
// this is a pure translation; size is accepted only to match the callback
// shape external libraries expect and is otherwise unused.
func Map(phys mem.PhysAddr, _ uintptr) mem.VirtAddr {
	return phys.ToVirtual()
}

// Unmap is the matching `laihost_unmap` callback shape. Since Map never
// establishes a new translation (everything is already HHDM-resident),
// there is nothing to undo.
func Unmap(_ mem.VirtAddr, _ uintptr) {}

// Outb/Inb/Outw/Inw/Outd/Ind re-export the raw port I/O primitives
// (kernel/cpu) under the names an external ACPI/AML implementation's host
// callback table expects.
func Outb(port uint16, val uint8)   { cpu.Outb(port, val) }
func Inb(port uint16) uint8         { return cpu.Inb(port) }
func Outw(port uint16, val uint16)  { cpu.Outw(port, val) }
func Inw(port uint16) uint16        { return cpu.Inw(port) }
func Outd(port uint16, val uint32)  { cpu.Outd(port, val) }
func Ind(port uint16) uint32        { return cpu.Ind(port) }
