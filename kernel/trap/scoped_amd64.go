// +build amd64

package trap

import (
	"gopheros/kernel/cpu"
	"unsafe"
)

const rflagsIF = 1 << 9
const rflagsAC = 1 << 18

// WithoutInterrupts runs f with interrupts disabled, restoring whatever the
// interrupt-enable state was before the call (not unconditionally
// re-enabling it), so nested calls compose: an inner WithoutInterrupts never
// turns interrupts back on behind an outer caller's back.
func WithoutInterrupts(f func()) {
	prevIF := cpu.ReadFlags()&rflagsIF != 0
	cpu.DisableInterrupts()
	f()
	if prevIF {
		cpu.EnableInterrupts()
	}
}

// WithUserspaceAccess runs f with SMAP's enforcement lifted, if the CPU has
// SMAP, restoring the prior AC state on return so nested calls compose the
// same way WithoutInterrupts does.
func WithUserspaceAccess(f func()) {
	if !cpu.GetCurrentCpu().Features.SMAP {
		f()
		return
	}
	prevAC := cpu.ReadFlags()&rflagsAC != 0
	cpu.Stac()
	f()
	if !prevAC {
		cpu.Clac()
	}
}

const sysenterOpcode = 0x340f // "sysenter", little-endian as a uint16

// catchSysenter implements the AMD #UD workaround: `sysenter` is not a valid
// instruction in AMD long mode, so user code using it (expecting the
// sysenter MSR mechanism) instead traps to vector 6. If the faulting
// instruction really was sysenter, rewrite the frame into a synthetic
// syscall: RIP/RSP come from the registers sysenter would have consumed
// them from (RCX, R11) rather than the ones #UD pushed.
//
// Called from trap_common in trap_amd64.s for vector 6 only.
func catchSysenter(tf *TrapFrame) {
	if tf.RIP == 0 {
		return
	}

	var opcode uint16
	WithUserspaceAccess(func() {
		opcode = *(*uint16)(unsafe.Pointer(uintptr(tf.RIP)))
	})

	if opcode == sysenterOpcode {
		tf.RIP = tf.RCX
		tf.RSP = tf.R11
		tf.Info = tSysenterUD
	}
}
