// +build riscv64

package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution until the next interrupt.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets satp to point at the given root page table (Sv39 mode is
// or'd in by the hat package before calling) and flushes the TLB.
func SwitchPDT(satpValue uintptr)

// ActivePDT returns the current value of satp.
func ActivePDT() uintptr

// ReadSTVal returns the value of the stval CSR, the RISC-V analogue of CR2:
// the faulting address for a page fault trap.
func ReadSTVal() uint64

// ReadSStatus returns the current value of the sstatus CSR.
func ReadSStatus() uint64

// SetSUM sets the SUM bit in sstatus, permitting supervisor-mode access to
// user-mapped pages.
func SetSUM()

// ClearSUM clears the SUM bit in sstatus.
func ClearSUM()
