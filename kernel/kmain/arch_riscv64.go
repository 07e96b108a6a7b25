// +build riscv64

package kmain

import (
	"gopheros/kernel/cpu"
	"gopheros/kernel/hal/bootinfo"
	"gopheros/kernel/hat"
	"gopheros/kernel/trap"
)

// archInit runs the RISC-V-specific half of early init. There is no
// per-CPU GDT/TSS analogue to build here (spec.md's per-CPU section is
// x86_64-specific); hat.Init publishes Sv39 MmuInfo and the kernel Hat, and
// trap.Init installs the single vectored stvec entry point.
func archInit(_ *bootinfo.Response) {
	hat.Init()
	trap.Init()
}

// idle parks the bootstrap hart once init has finished, the same stand-in
// for a scheduler as the amd64 path.
func idle() {
	cpu.EnableInterrupts()
	for {
		cpu.Halt()
	}
}
