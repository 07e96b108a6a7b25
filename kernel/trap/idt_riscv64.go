// +build riscv64

package trap

// numFixedExceptions is one past the highest named synchronous exception
// code (store/amo page fault), sizing the dense exceptionNames table.
const numFixedExceptions = 16

// exceptionNames is a dense, code-indexed lookup table mirroring the fixed
// RISC-V synchronous exception codes (Volume II, Machine-Level ISA, scause
// encoding); codes 10, 11, 14 are architecturally reserved and left blank.
var exceptionNames = [numFixedExceptions]string{
	0:  "instruction address misaligned",
	1:  "instruction access fault",
	2:  "illegal instruction",
	3:  "breakpoint",
	4:  "load address misaligned",
	5:  "load access fault",
	6:  "store/amo address misaligned",
	7:  "store/amo access fault",
	8:  "environment call from u-mode",
	9:  "environment call from s-mode",
	12: "instruction page fault",
	13: "load page fault",
	15: "store/amo page fault",
}

// ExceptionName returns the fixed name for a synchronous exception code,
// and false for interrupts or reserved codes.
func ExceptionName(vector uint8) (string, bool) {
	if int(vector) >= len(exceptionNames) {
		return "", false
	}
	name := exceptionNames[vector]
	return name, name != ""
}

const numVectors = 256

var idtInitialized bool

// Init installs the trap entry point into stvec. RISC-V has a single
// vectored entry rather than a 256-entry gate table, so there is no
// per-vector construction step to mirror the x86_64 IDT build.
func Init() {
	if idtInitialized {
		panic("trap: stvec already initialized")
	}
	idtInitialized = true
	setSTVec(trapEntryAddr)
}

// trapEntryAddr is populated by trap_riscv64.s with the address of
// trap_entry, the single assembly entry point stvec is pointed at.
var trapEntryAddr uint64

// setSTVec writes addr into the stvec CSR in direct mode (mode bits 0).
func setSTVec(addr uint64)
