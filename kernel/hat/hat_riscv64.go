// +build riscv64

package hat

import (
	"gopheros/kernel/cpu"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
)

const ptesPerTable = 512

// Sv39 PTE bit positions. The physical page number occupies bits 10-53; the
// low 10 bits are flags. There is no independent NX bit: X's absence is
// itself the no-execute indication, which newProtMap accounts for by never
// setting an "NX" bit and instead omitting the exec bit from leaves that
// should not be executable.
const (
	flagValid    PteFlags = 1 << 0
	flagRead     PteFlags = 1 << 1
	flagWrite    PteFlags = 1 << 2
	flagExec     PteFlags = 1 << 3
	flagUser     PteFlags = 1 << 4
	flagGlobal   PteFlags = 1 << 5
	flagAccessed PteFlags = 1 << 6
	flagDirty    PteFlags = 1 << 7

	pteAddrMask uint64 = 0x003f_ffff_ffff_fc00

	satpModeSv39 uintptr = 8 << 60
)

var kernelHat *Hat

// KernelHat returns the process-wide kernel address space, published once
// by Init.
func KernelHat() *Hat {
	return kernelHat
}

// Init publishes the Sv39 MmuInfo and builds the kernel Hat singleton. Sv39
// gives three page-table levels; the HAT maps 4 KiB and 2 MiB pages only, so
// GigapagesSupported is false and a 1 GiB request is downgraded to 2 MiB.
func Init() {
	m := MmuInfo{
		Bits:         39,
		Levels:       3,
		MaxLevel:     2,
		PtesPerTable: ptesPerTable,
		IndexBits:    9,
		AddrMask:     pteAddrMask,
		PresentBit:   flagValid,
		HugeBit:      0, // Sv39 has no dedicated huge-page bit; see LeafBits
		LeafBits:     flagRead | flagWrite | flagExec,
		WriteBit:     flagWrite,
		UserBit:      flagUser,
		NXBit:        0,
		GlobalBit:    flagGlobal,
		ParentFlags:  flagValid | flagUser,
		PageSizeBytes: [numPageSizes]uintptr{
			Size4KiB: uintptr(mem.PageSize),
			Size2MiB: 2 * 1024 * 1024,
			Size1GiB: 1024 * 1024 * 1024,
		},
		PteFlagsForLevel: [numPageSizes]PteFlags{
			Size4KiB: 0,
			Size2MiB: 0,
			Size1GiB: 0,
		},
		NXSupported:        false,
		GigapagesSupported: false,
		GlobalSupported:    true,
		PCIDEnabled:        false,
	}
	m.Prot = newProtMap()

	PublishMmuInfo(m)

	top, allocErr := pmm.AllocFrame()
	if allocErr != nil {
		panic(allocErr)
	}
	PublishInitialPtes(tableAt(top))

	kernelHat = &Hat{topLevel: top}
	kernelHat.root = archRoot(top, 0)
}

// newProtMap builds the Sv39 protection table: R is always set on a present
// leaf, W follows ProtWrite, X follows ProtExec, U follows ProtUser.
func newProtMap() ProtMap {
	var m ProtMap
	for i := 0; i < 16; i++ {
		p := Prot(i)
		v := flagRead
		if p&ProtWrite != 0 {
			v |= flagWrite
		}
		if p&ProtExec != 0 {
			v |= flagExec
		}
		if p&ProtUser != 0 {
			v |= flagUser
		}
		m[i] = v
	}
	return m
}

func archRoot(top mem.PhysAddr, asid uintptr) uintptr {
	return satpModeSv39 | (asid&0xffff)<<44 | uintptr(top)>>12
}

func archSwitchTo(root uintptr) {
	cpu.SwitchPDT(root)
}
