// +build riscv64

package trap

// TrapFrame is the uniform register snapshot built on a RISC-V trap. Unlike
// x86_64, a single vectored entry point (stvec) handles everything, so
// there is no per-vector stub table: scause's sign bit distinguishes an
// interrupt from an exception, and its low bits are the cause code.
type TrapFrame struct {
	GPR     [32]uint64
	SCause  uint64
	SEPC    uint64
	STVal   uint64
	SStatus uint64
}

const causeInterruptBit = 1 << 63

// Vector returns the low bits of scause: the exception code, or the
// interrupt number when IsException is false.
func (tf *TrapFrame) Vector() uint8 {
	return uint8(tf.SCause &^ causeInterruptBit)
}

// IsException reports whether the trap's cause sign bit is clear, i.e. this
// is a synchronous exception rather than an asynchronous interrupt.
func (tf *TrapFrame) IsException() bool {
	return tf.SCause&causeInterruptBit == 0
}

// PC returns sepc, the address execution was at when the trap fired, for
// the architecture-independent fatal-exception log line in dispatch.go.
func (tf *TrapFrame) PC() uint64 {
	return tf.SEPC
}

// ErrorCode returns stval: for a page fault this is the faulting address,
// for most other exceptions it is architecturally UNSPECIFIED. There is no
// RISC-V equivalent of x86_64's pushed error code; stval is the closest
// analogue and is what the fatal-exception log line reports.
func (tf *TrapFrame) ErrorCode() uint64 {
	return tf.STVal
}

// IsSynthetic always reports false: RISC-V has a single vectored trap
// entry and no synthetic, non-scause frame like amd64's fast-path
// syscall/sysenter trampoline.
func (tf *TrapFrame) IsSynthetic() bool {
	return false
}

// SyntheticVector is never consulted since IsSynthetic is always false.
func (tf *TrapFrame) SyntheticVector() uint8 {
	return 0
}
