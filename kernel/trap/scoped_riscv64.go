// +build riscv64

package trap

import "gopheros/kernel/cpu"

const sstatusSIE = 1 << 1
const sstatusSUM = 1 << 18

// WithoutInterrupts runs f with supervisor interrupts disabled, restoring
// the prior SIE state on return so nested scopes compose.
func WithoutInterrupts(f func()) {
	prev := cpu.ReadSStatus()&sstatusSIE != 0
	cpu.DisableInterrupts()
	f()
	if prev {
		cpu.EnableInterrupts()
	}
}

// WithUserspaceAccess runs f with the SUM bit set in sstatus, permitting
// supervisor-mode loads/stores against user-mapped pages, restoring the
// prior bit on return. Interrupts are left alone; unlike x86_64's
// stac/clac, SUM toggling itself is not preemption-unsafe, but callers
// typically nest this inside WithoutInterrupts anyway when touching
// otherwise-unvalidated user pointers.
func WithUserspaceAccess(f func()) {
	prev := cpu.ReadSStatus()&sstatusSUM != 0
	cpu.SetSUM()
	f()
	if !prev {
		cpu.ClearSUM()
	}
}
