// Package trap implements the common trap-frame pipeline shared by every
// interrupt, CPU exception and system call: IDT/GDT/TSS setup on x86_64, the
// fast-path syscall/sysenter entries, and the single dispatcher every entry
// path funnels into.
package trap

import "gopheros/kernel/kfmt"

// Handler is a registered, non-fatal trap handler. Returning true tells the
// dispatcher the trap was handled and no further action (e.g. escalation to
// panic) is required.
type Handler func(tf *TrapFrame) bool

// handlers holds one optional non-fatal handler per vector. Only entries
// for vectors actually registered are consulted; this is the "interrupt
// handler registry" the spec defers as future work, kept intentionally
// thin.
var handlers [numVectors]Handler

// RegisterHandler installs f as the non-fatal handler for vector,
// overwriting any previous registration.
func RegisterHandler(vector uint8, f Handler) {
	handlers[vector] = f
}

// panicFn is overridden by tests so dispatch-to-fatal-exception paths can be
// exercised without actually halting.
var panicFn = func(v interface{}) { panic(v) }

// dispatch is the single entry point every trampoline (interrupt stub,
// syscall, sysenter) calls with a freshly built TrapFrame. It is unexported;
// the assembly trampolines in this package reach it as `·dispatch`.
func dispatch(tf *TrapFrame) {
	if tf.IsException() {
		if h := handlers[tf.Vector()]; h != nil && h(tf) {
			return
		}
		name, _ := ExceptionName(tf.Vector())
		kfmt.Printf("trap: fatal exception: %s (vector=%d error=0x%x pc=0x%x)\n", name, tf.Vector(), tf.ErrorCode(), tf.PC())
		if asm := describeFault(tf); asm != "" {
			kfmt.Printf("trap: faulting instruction: %s\n", asm)
		}
		panicFn(name)
		return
	}

	vector := tf.Vector()
	if tf.IsSynthetic() {
		// Info carries a 256+ sentinel for the fast-path syscall/sysenter
		// trampoline, not a real vector; Vector()'s truncated low byte
		// would otherwise alias an unrelated handler slot.
		vector = tf.SyntheticVector()
	}
	if h := handlers[vector]; h != nil {
		h(tf)
	}
}
