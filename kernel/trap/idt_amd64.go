// +build amd64

package trap

import (
	"gopheros/kernel"
	"gopheros/kernel/cpu"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"unsafe"
)

// Vector numbers for the fixed x86_64 exceptions this kernel names.
const (
	VectorDivideError       = 0
	VectorDebug             = 1
	VectorNMI               = 2
	VectorBreakpoint        = 3
	VectorOverflow          = 4
	VectorBoundRange        = 5
	VectorInvalidOpcode     = 6
	VectorDeviceNotAvail    = 7
	VectorDoubleFault       = 8
	VectorInvalidTSS        = 10
	VectorSegmentNotPresent = 11
	VectorStackFault        = 12
	VectorGeneralProtection = 13
	VectorPageFault         = 14
	VectorFPUError          = 16
	VectorAlignmentCheck    = 17
	VectorMachineCheck      = 18
	VectorSIMDError         = 19
	VectorVirtualization    = 20
	VectorControlProtection = 21

	VectorSyscall = 0x80
)

// exceptionNames is a dense, vector-indexed lookup table covering every
// defined x86_64 exception vector (0..21), including the vectors no IST
// assignment names (#AC, #XM, #VE, #CP) that the dispatcher still needs to
// report by name. The reserved slots (9, 15) are left empty.
var exceptionNames = [numFixedExceptions]string{
	VectorDivideError:       "divide error",
	VectorDebug:             "debug",
	VectorNMI:               "non-maskable interrupt",
	VectorBreakpoint:        "breakpoint",
	VectorOverflow:          "overflow",
	VectorBoundRange:        "bound range exceeded",
	VectorInvalidOpcode:     "invalid opcode",
	VectorDeviceNotAvail:    "device not available",
	VectorDoubleFault:       "double fault",
	VectorInvalidTSS:        "invalid TSS",
	VectorSegmentNotPresent: "segment not present",
	VectorStackFault:        "stack fault",
	VectorGeneralProtection: "general protection fault",
	VectorPageFault:         "page fault",
	VectorFPUError:          "x87 FPU error",
	VectorAlignmentCheck:    "alignment check",
	VectorMachineCheck:      "machine check",
	VectorSIMDError:         "SIMD FPU error",
	VectorVirtualization:    "virtualization exception",
	VectorControlProtection: "control-protection exception",
}

// numFixedExceptions is one past the highest fixed exception vector
// (VectorControlProtection), sizing the dense exceptionNames table.
const numFixedExceptions = VectorControlProtection + 1

// ExceptionName returns the fixed name for a vector in 0..numFixedExceptions,
// and false for anything else (a reserved slot, device interrupt, syscall,
// or synthetic entry).
func ExceptionName(vector uint8) (string, bool) {
	if int(vector) >= len(exceptionNames) {
		return "", false
	}
	name := exceptionNames[vector]
	return name, name != ""
}

// hasHardwareError reports whether the CPU itself pushes an error code for
// this vector; the per-vector stub must synthesize a zero one when it does
// not, to keep TrapFrame's layout uniform.
func hasHardwareError(vector int) bool {
	switch vector {
	case VectorDoubleFault, VectorInvalidTSS, VectorSegmentNotPresent,
		VectorStackFault, VectorGeneralProtection, VectorPageFault,
		VectorAlignmentCheck, VectorControlProtection:
		return true
	default:
		return false
	}
}

// Ist identifies one of the seven interrupt-stack-table slots a vector may
// be routed through; slot 0 means "do not switch stacks".
type Ist uint8

const (
	IstNone Ist = 0
	Ist1    Ist = 1
	Ist2    Ist = 2
	Ist3    Ist = 3
	Ist4    Ist = 4
)

// istForVector implements the fixed vector -> IST assignment table: #DB
// gets its own stack since a debug exception can occur on the kernel stack,
// #NMI and #MC are asynchronous/fatal conditions that must not trust the
// current stack, and #DF gets a dedicated stack as the last resort against
// stack corruption.
func istForVector(vector int) Ist {
	switch vector {
	case VectorDebug:
		return Ist1
	case VectorDoubleFault:
		return Ist2
	case VectorNMI:
		return Ist3
	case VectorMachineCheck:
		return Ist4
	default:
		return IstNone
	}
}

const (
	gateTypeInterrupt64 = 0xe
	gatePresent         = 1 << 7
	numVectors          = 256
)

// gateDescriptor is one 128-bit IDT entry.
type gateDescriptor struct {
	lo, hi uint64
}

func buildGate(offset uint64, selector uint16, ist Ist, dpl uint8) gateDescriptor {
	attr := uint64(gateTypeInterrupt64) | uint64(dpl&0x3)<<5 | uint64(gatePresent)
	lo := (offset & 0xffff) |
		uint64(selector)<<16 |
		uint64(ist)<<32 |
		attr<<40 |
		((offset & 0xffff0000) << 32)
	return gateDescriptor{lo: lo, hi: offset >> 32}
}

// idt is the process-wide Interrupt Descriptor Table: 256 gate descriptors,
// built once and never mutated afterward.
var idt [numVectors]gateDescriptor

var idtInitialized bool

// trapStubs is populated by trap_stubs_amd64.s: the address of each vector's tiny
// assembly stub, indexed by vector number.
var trapStubs [numVectors]uintptr

// trapSyscallAddr and trapSysenterAddr are likewise populated by the
// assembly side; they are the fast-path entry points installed into the
// corresponding MSRs.
var trapSyscallAddr uintptr
var trapSysenterAddr uintptr

var errIDTReinit = &kernel.Error{Module: "trap", Message: "IDT initialized more than once"}

// Init builds the IDT, allocates the private IST stacks for the current
// CPU, loads the IDTR, and programs the syscall/sysenter fast paths. Must be
// called exactly once, by the bootstrap CPU, before interrupts are enabled
// anywhere.
func Init() {
	if idtInitialized {
		panic(errIDTReinit)
	}

	for v := 0; v < numVectors; v++ {
		dpl := uint8(0)
		if v == VectorSyscall {
			dpl = 3
		}
		idt[v] = buildGate(uint64(trapStubs[v]), cpu.SelKernCode, istForVector(v), dpl)
	}
	idtInitialized = true

	c := cpu.GetCurrentCpu()
	for ist := Ist1; ist <= Ist4; ist++ {
		base, ok := pmm.AllocFrames(4)
		if !ok {
			panic(&kernel.Error{Module: "trap", Message: "out of memory allocating IST stack"})
		}
		top := uintptr(base.ToVirtual()) + 4*uintptr(mem.PageSize)
		if prev := c.SetInterruptStack(uint8(ist), top); prev != 0 {
			panic(&kernel.Error{Module: "trap", Message: "IST slot already assigned"})
		}
	}

	loadIDT(uintptr(unsafe.Pointer(&idt[0])), uint16(unsafe.Sizeof(idt)-1))

	cpu.WriteMSR(cpu.MsrSysenterCS, uint64(cpu.SelKernCode))
	cpu.WriteMSR(cpu.MsrSysenterEIP, uint64(trapSysenterAddr))

	star := uint64(cpu.SelUserCode32)<<48 | uint64(cpu.SelKernCode)<<32
	cpu.WriteMSR(cpu.MsrSTAR, star)
	cpu.WriteMSR(cpu.MsrLSTAR, uint64(trapSyscallAddr))
	cpu.WriteMSR(cpu.MsrFMASK, trapFMask)
}

// trapFMask is the RFLAGS mask cleared by the CPU on syscall entry: DF
// (so the kernel's string ops default to forward), IF (interrupts start
// disabled until the dispatcher re-enables them), TF (no single-stepping
// into the kernel) and AC (SMAP enforced until with_userspace_access lifts
// it explicitly).
const trapFMask = 1<<10 | 1<<9 | 1<<8 | 1<<18

// loadIDT issues lidt against a freshly built pseudo-descriptor.
func loadIDT(base uintptr, limit uint16)
