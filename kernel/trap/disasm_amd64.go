// +build amd64

package trap

import (
	"unsafe"

	"golang.org/x/arch/x86/x86asm"
)

// describeFault decodes and formats the single instruction at the frame's
// RIP, for inclusion in the fatal-exception report. Reading the faulting
// bytes can itself fault (e.g. an instruction-fetch #PF on a truly bad RIP),
// so any panic recovered here just yields no description rather than
// compounding the original exception.
func describeFault(tf *TrapFrame) (s string) {
	defer func() {
		if recover() != nil {
			s = ""
		}
	}()

	var buf [16]byte
	WithUserspaceAccess(func() {
		src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(tf.RIP))), len(buf))
		copy(buf[:], src)
	})

	inst, err := x86asm.Decode(buf[:], 64)
	if err != nil {
		return ""
	}
	return x86asm.GNUSyntax(inst, tf.RIP, nil)
}
