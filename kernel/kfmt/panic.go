package kfmt

import (
	"gopheros/kernel"
	"gopheros/kernel/cpu"
)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}

	// inPanic guards against a second panic recursing into Panic while
	// the first one is still printing its message: the core publishes
	// only a halt-and-freeze entry point, not a full backtrace/symbol
	// subsystem, so there is nothing more elaborate to skip, but the
	// flag still prevents a panic-during-panic from looping forever.
	inPanic bool

	// executableImage is the "register executable image" slot the core
	// exposes for a future (out-of-scope) backtrace/symbolication
	// subsystem to read from. It is never walked here.
	executableImage []byte
)

// RegisterExecutableImage records the loaded kernel ELF blob so that a
// future backtrace/symbolication subsystem (out of this core's scope) has
// something to resolve symbols against. Safe to call at most once, during
// early init.
func RegisterExecutableImage(blob []byte) {
	executableImage = blob
}

// ResetPanicForTest clears the re-entry guard so package tests can exercise
// multiple independent panics.
func ResetPanicForTest() {
	inPanic = false
}

// Panic outputs the supplied error (if not nil) to the console and halts the
// CPU. Calls to Panic never return. Panic also works as a redirection target
// for calls to panic() (resolved via runtime.gopanic)
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	if inPanic {
		cpuHaltFn()
		return
	}
	inPanic = true

	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	cpuHaltFn()
}

// panicString serves as a redirect target for runtime.throw
//go:redirect-from runtime.throw
func panicString(msg string) {
	Panic(msg)
}
