// +build riscv64

package trap

// describeFault has no RISC-V disassembler wired up (golang.org/x/arch does
// not carry one); the fatal-exception report falls back to just the
// register dump.
func describeFault(tf *TrapFrame) string {
	return ""
}
