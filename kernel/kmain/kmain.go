// Package kmain is the architecture-independent bring-up sequence the boot
// stub hands control to once it has assembled a bootinfo.Response. It ties
// together the pieces that each carry their own publish-once/seam
// discipline (HHDM base, PMM, HAT, trap dispatch, device probing) in the
// order spec.md's early-init section requires; it owns no state of its own.
package kmain

import (
	"gopheros/kernel/goruntime"
	"gopheros/kernel/hal"
	"gopheros/kernel/hal/bootinfo"
	"gopheros/kernel/kfmt"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
)

// Main runs the bootstrap CPU's early-init sequence to completion and never
// returns. The boot stub (outside this spec's scope) is expected to call
// this exactly once, with interrupts still disabled and only the HHDM
// mapping active.
func Main(resp *bootinfo.Response) {
	mem.PublishHHDMBase(resp.HHDMBase)
	kfmt.RegisterExecutableImage(resp.KernelBlob)

	seedPMM(resp)

	// archInit probes CPU features, builds the bootstrap CPU's GDT/TSS
	// (amd64 only), publishes MmuInfo and the kernel Hat, and installs
	// the trap dispatch table. See arch_amd64.go / arch_riscv64.go.
	archInit(resp)

	if err := goruntime.Init(); err != nil {
		kfmt.Panic(err)
	}

	hal.DetectHardware()

	idle()
}

// seedPMM hands every usable region of the boot memory map to the frame
// allocator. Regions shorter than one page are dropped silently: the boot
// protocol is not expected to report sub-page usable fragments, and a
// zero-frame FreeFrames call would be a no-op anyway.
func seedPMM(resp *bootinfo.Response) {
	resp.VisitUsable(func(base mem.PhysAddr, length uintptr) {
		frameCount := length / uintptr(mem.PageSize)
		if frameCount == 0 {
			return
		}
		pmm.FreeFrames(base, frameCount)
	})
}
