// +build riscv64

package trap

import "testing"

func TestTrapFrameVectorAndIsException(t *testing.T) {
	tf := &TrapFrame{SCause: 13} // load page fault
	if got := tf.Vector(); got != 13 {
		t.Errorf("Vector() = %d, want 13", got)
	}
	if !tf.IsException() {
		t.Error("IsException() = false for a synchronous exception cause")
	}

	tf = &TrapFrame{SCause: causeInterruptBit | 5}
	if got := tf.Vector(); got != 5 {
		t.Errorf("Vector() = %d, want 5", got)
	}
	if tf.IsException() {
		t.Error("IsException() = true for an interrupt cause")
	}
}

func TestTrapFramePCAndErrorCode(t *testing.T) {
	tf := &TrapFrame{SEPC: 0x80001000, STVal: 0x1000}
	if got := tf.PC(); got != tf.SEPC {
		t.Errorf("PC() = %#x, want %#x", got, tf.SEPC)
	}
	if got := tf.ErrorCode(); got != tf.STVal {
		t.Errorf("ErrorCode() = %#x, want %#x", got, tf.STVal)
	}
}
