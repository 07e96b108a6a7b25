// +build amd64

package trap

import "testing"

func TestTrapFrameVectorAndIsException(t *testing.T) {
	tf := &TrapFrame{Info: VectorPageFault}
	if got := tf.Vector(); got != VectorPageFault {
		t.Errorf("Vector() = %d, want %d", got, VectorPageFault)
	}
	if !tf.IsException() {
		t.Error("IsException() = false for a fixed exception vector")
	}

	tf = &TrapFrame{Info: tSyscall}
	if tf.IsException() {
		t.Error("IsException() = true for a synthetic syscall entry")
	}
}

func TestTrapFrameFromUser(t *testing.T) {
	tf := &TrapFrame{CS: 0x08} // kernel code segment, RPL 0
	if tf.FromUser() {
		t.Error("FromUser() = true for a kernel CS")
	}

	tf = &TrapFrame{CS: 0x1b} // user code segment, RPL 3
	if !tf.FromUser() {
		t.Error("FromUser() = false for a user CS")
	}
}

func TestTrapFramePCAndErrorCode(t *testing.T) {
	tf := &TrapFrame{RIP: 0xffffffff80100000, Error: 0x4}
	if got := tf.PC(); got != tf.RIP {
		t.Errorf("PC() = %#x, want %#x", got, tf.RIP)
	}
	if got := tf.ErrorCode(); got != tf.Error {
		t.Errorf("ErrorCode() = %#x, want %#x", got, tf.Error)
	}
}
