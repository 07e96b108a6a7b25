// +build amd64

package kmain

import (
	"gopheros/kernel/cpu"
	"gopheros/kernel/hal/bootinfo"
	"gopheros/kernel/hat"
	"gopheros/kernel/trap"
)

// bootCPU is the Cpu block for the bootstrap processor. It is a package
// var, not a Main-local, because cpu.EarlyInit programs GS_BASE to point at
// it and that pointer must stay valid for the process's entire lifetime
// (Main never returns, but a local would still be fragile to depend on).
var bootCPU cpu.Cpu

// archInit runs the x86_64-specific half of early init: per-CPU GDT/TSS
// bring-up and feature probing, then HAT and trap-dispatch setup, which
// both need the frame allocator seedPMM just filled.
func archInit(resp *bootinfo.Response) {
	cpu.EarlyInit(&bootCPU)
	hat.Init(resp.Paging == bootinfo.PagingMode5Level)
	trap.Init()
}

// idle parks the bootstrap CPU once init has finished. A real scheduler
// (out of this spec's scope) would replace this with a run-queue pick;
// until then, halting and waiting for the next interrupt is the correct
// thing to do with nothing else runnable.
func idle() {
	cpu.EnableInterrupts()
	for {
		cpu.Halt()
	}
}
