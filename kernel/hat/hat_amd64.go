// +build amd64

package hat

import (
	"gopheros/kernel/cpu"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
)

const ptesPerTable = 512

// Exact bit positions from the x86_64 page-table entry format.
const (
	flagPresent  PteFlags = 1 << 0
	flagWrite    PteFlags = 1 << 1
	flagUser     PteFlags = 1 << 2
	flagPWT      PteFlags = 1 << 3
	flagPCD      PteFlags = 1 << 4
	flagAccessed PteFlags = 1 << 5
	flagDirty    PteFlags = 1 << 6
	flagHuge     PteFlags = 1 << 7 // PAT bit at the 4 KiB level; HUGE at 2 MiB/1 GiB levels
	flagGlobal   PteFlags = 1 << 8
	flagNX       PteFlags = 1 << 63

	pteAddrMask uint64 = 0x000f_ffff_ffff_f000
)

var kernelHat *Hat

// KernelHat returns the process-wide kernel address space, published once
// by Init.
func KernelHat() *Hat {
	return kernelHat
}

// Init probes CPU features and the boot protocol's paging-mode response,
// publishes the resulting MmuInfo, builds the kernel's INITIAL_PTES
// template and the kernel Hat singleton. Must run exactly once, before any
// other HAT operation, on the bootstrap CPU.
func Init(fiveLevelPaging bool) {
	_, _, ecx1, edx1 := cpu.ID(1)
	_, ebx7, ecx7, _ := cpu.ID(7)
	_, _, _, edx81 := cpu.ID(0x80000001)

	nxSupported := edx81&(1<<20) != 0
	gigapagesSupported := edx81&(1<<26) != 0
	pgeSupported := edx1&(1<<13) != 0
	pcidSupported := ecx1&(1<<17) != 0
	_ = ebx7  // SMEP/SMAP bits consulted by the trap package, not here
	_ = ecx7

	levels := uint8(4)
	bits := uint8(48)
	if fiveLevelPaging {
		levels = 5
		bits = 57
	}

	nxBit := PteFlags(0)
	if nxSupported {
		nxBit = flagNX
	}
	globalBit := PteFlags(0)
	if pgeSupported {
		globalBit = flagGlobal
	}

	m := MmuInfo{
		Bits:         bits,
		Levels:       levels,
		MaxLevel:     levels - 1,
		PtesPerTable: ptesPerTable,
		IndexBits:    9,
		AddrMask:     pteAddrMask,
		PresentBit:   flagPresent,
		HugeBit:      flagHuge,
		LeafBits:     flagHuge,
		WriteBit:     flagWrite,
		UserBit:      flagUser,
		NXBit:        nxBit,
		GlobalBit:    globalBit,
		ParentFlags:  flagPresent | flagUser | flagWrite,
		PageSizeBytes: [numPageSizes]uintptr{
			Size4KiB: uintptr(mem.PageSize),
			Size2MiB: 2 * 1024 * 1024,
			Size1GiB: 1024 * 1024 * 1024,
		},
		PteFlagsForLevel: [numPageSizes]PteFlags{
			Size4KiB: 0,
			Size2MiB: flagHuge,
			Size1GiB: flagHuge,
		},
		NXSupported:        nxSupported,
		GigapagesSupported: gigapagesSupported,
		GlobalSupported:    pgeSupported,
		PCIDEnabled:        pcidSupported,
	}
	m.Prot = newProtMap(nxBit, flagWrite, flagUser)

	PublishMmuInfo(m)

	top, allocErr := pmm.AllocFrame()
	if allocErr != nil {
		panic(allocErr)
	}
	PublishInitialPtes(tableAt(top))

	kernelHat = &Hat{topLevel: top}
	kernelHat.root = archRoot(top, 0)
}

// newProtMap builds the 16-entry protection table described by the spec:
// indices 0-7 are kernel mappings (no USER bit), 8-15 are user mappings
// (USER bit set); within each half, the low two bits of the index select
// {no exec & no write -> NX, exec & no write -> clear, no exec & write ->
// WRITE|NX, exec & write -> WRITE}. The read bit (bit 2 of Prot) never
// changes the result: every present x86_64 page is readable.
func newProtMap(nxBit, writeBit, userBit PteFlags) ProtMap {
	basic := [4]PteFlags{nxBit, 0, writeBit | nxBit, writeBit}

	var m ProtMap
	for i := 0; i < 16; i++ {
		v := basic[i&0x3]
		if i&int(ProtUser) != 0 {
			v |= userBit
		}
		m[i] = v
	}
	return m
}

func archRoot(top mem.PhysAddr, pcid uintptr) uintptr {
	root := uintptr(top)
	if info.PCIDEnabled {
		root |= pcid
	}
	return root
}

func archSwitchTo(root uintptr) {
	cpu.SwitchPDT(root)
}
