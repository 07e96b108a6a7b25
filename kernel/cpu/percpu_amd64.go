// +build amd64

package cpu

import (
	"sync/atomic"
	"unsafe"
)

// Selector values into the per-CPU GDT.
const (
	SelNull       = 0x00
	SelKernCode   = 0x08
	SelKernData   = 0x10
	SelUserCode32 = 0x18
	SelUserData32 = 0x20
	SelUserCode   = 0x28 | 3
	SelUserData   = 0x30 | 3
	SelTSS        = 0x38
)

// Exact descriptor encodings, lifted byte-for-byte from the reference
// kernel's GDT setup.
const (
	gdtKernCode   uint64 = 0x0020_9a00_0000_0000
	gdtKernData   uint64 = 0x0000_9200_0000_0000
	gdtUserCode32 uint64 = 0x00cf_fa00_0000_ffff
	gdtUserData32 uint64 = 0x00cf_f200_0000_ffff
	gdtUserCode   uint64 = 0x0060_fa00_0000_0000
	gdtUserData   uint64 = 0x0000_f200_0000_0000
)

// Gdt is the per-CPU Global Descriptor Table: null, kernel code/data, 32-bit
// user code/data (legacy format, needed only to reach long mode via
// sysenter/sysexit), 64-bit user code/data, and a TSS descriptor spanning
// two slots.
type Gdt struct {
	null, kernCode, kernData uint64
	userCode32, userData32   uint64
	userCode, userData       uint64
	tssLo, tssHi             uint64
}

// Tss is the x86_64 Task State Segment. Only the privileged stack table, the
// IST pointers and the I/O map base are meaningful in long mode; the rest is
// reserved and must be zero. IOMapBase is set to sizeof(Tss) to place the
// (absent) I/O permission bitmap entirely outside the segment limit,
// disabling it.
type Tss struct {
	reserved0            uint32
	PrivilegedStackTable [3]uint64
	reserved1            uint64
	InterruptStackTable  [8]uint64
	reserved2            uint64
	reserved3            uint16
	IOMapBase            uint16
}

// Features records the CPU capability bits probed once at boot and cached
// per-CPU thereafter.
type Features struct {
	NX, SMEP, SMAP, UMIP, PCID, PGE, Gigapage, FiveLevelPaging bool
}

// CpuData is the x86_64 payload embedded at the head of Cpu. Its first
// field is a pointer back to the owning Cpu; GS_BASE is programmed to the
// address of this struct so that `mov reg, gs:[0]` recovers the current Cpu
// in a single indirect load. ustackp/kstackp are scratch slots the syscall
// entry trampoline uses to park the user stack pointer while it switches to
// the kernel one; their offsets (8, 16) are hardcoded in
// kernel/trap/trapframe_amd64.h (used by trap_amd64.s) and must move in
// lockstep with this struct.
type CpuData struct {
	self    *Cpu
	ustackp uintptr
	kstackp uintptr
	gdt     Gdt
	tss     Tss
}

// SetKernelStack records the stack pointer the syscall/sysenter trampolines
// should switch to on entry from user mode.
func (c *Cpu) SetKernelStack(sp uintptr) {
	c.MD.kstackp = sp
}

// SetInterruptStack installs sp as the top of the private stack used by IST
// slot ist, returning whatever was there before (zero the first time).
func (c *Cpu) SetInterruptStack(ist uint8, sp uintptr) uintptr {
	prev := c.MD.tss.InterruptStackTable[ist]
	c.MD.tss.InterruptStackTable[ist] = uint64(sp)
	return uintptr(prev)
}

// Cpu is the per-logical-CPU data block. It embeds the architecture payload
// at offset 0, as required by the capability described in CpuData.
type Cpu struct {
	MD       CpuData
	ID       uint32
	Features Features
}

var (
	nextCPUID uint32

	// globalFeatures caches the first CPU's feature probe; subsequent
	// CPUs are expected (but not verified) to match.
	globalFeatures Features
)

// probeFeatures executes CPUID to fill in a Features value.
func probeFeatures() Features {
	_, _, ecx1, edx1 := ID(1)
	_, ebx7, ecx7, _ := ID(7)
	_, _, _, edx81 := ID(0x8000_0001)

	return Features{
		NX:       edx81&(1<<20) != 0,
		Gigapage: edx81&(1<<26) != 0,
		PGE:      edx1&(1<<13) != 0,
		PCID:     ecx1&(1<<17) != 0,
		SMEP:     ebx7&(1<<7) != 0,
		SMAP:     ebx7&(1<<20) != 0,
		UMIP:     ecx7&(1<<2) != 0,
	}
}

// EarlyInit performs the per-CPU bring-up sequence described by the spec:
// assign a CPU id, build a fresh GDT/TSS, load them, probe features, and
// program GS_BASE so GetCurrentCpu works from this point on. The IST
// stacks are left unset here: PMM is not seeded yet at this point in the
// architecture init sequence, so trap.Init installs them once frames are
// available.
func EarlyInit(c *Cpu) {
	c.MD.self = c
	c.ID = atomic.AddUint32(&nextCPUID, 1) - 1

	c.MD.tss = Tss{IOMapBase: uint16(unsafe.Sizeof(Tss{}))}

	c.MD.gdt = Gdt{
		kernCode:   gdtKernCode,
		kernData:   gdtKernData,
		userCode32: gdtUserCode32,
		userData32: gdtUserData32,
		userCode:   gdtUserCode,
		userData:   gdtUserData,
	}
	buildTSSDescriptor(&c.MD.gdt, &c.MD.tss)

	loadGDT(uintptr(unsafe.Pointer(&c.MD.gdt)), uint16(unsafe.Sizeof(Gdt{})-1))
	reloadSegments()
	loadTR(SelTSS)

	if c.ID == 0 {
		globalFeatures = probeFeatures()
	}
	c.Features = globalFeatures

	WriteMSR(MsrGSBase, uint64(uintptr(unsafe.Pointer(&c.MD))))
	WriteMSR(MsrKernelGSBase, 0)
}

// buildTSSDescriptor splits the 64-bit base address of tss across the two
// GDT slots reserved for it, per the x86_64 system-descriptor encoding.
func buildTSSDescriptor(gdt *Gdt, tss *Tss) {
	base := uint64(uintptr(unsafe.Pointer(tss)))
	limit := uint64(unsafe.Sizeof(Tss{}) - 1)

	gdt.tssLo = limit&0xffff |
		(base&0xff_ffff)<<16 |
		0x89<<40 | // present, type=0x9 (64-bit TSS, available)
		((limit>>16)&0xf)<<48 |
		((base>>24)&0xff)<<56
	gdt.tssHi = base >> 32
}

// GetCurrentCpu returns the Cpu structure for the CPU executing this call,
// reached via the GS_BASE segment register in O(1).
func GetCurrentCpu() *Cpu

// loadGDT issues lgdt with a freshly constructed pseudo-descriptor and
// reloads CS via the far-return trampoline (CS cannot be reloaded with a
// plain MOV in long mode).
func loadGDT(base uintptr, limit uint16)

// reloadSegments reloads DS, ES, FS, GS and SS to the kernel data selector.
func reloadSegments()

// loadTR loads the task register with the given selector.
func loadTR(selector uint16)
