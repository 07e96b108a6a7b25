// +build amd64

package cpu

// Outb/Inb/Outw/Inw/Outd/Ind are the raw port I/O primitives the spec names
// as one of the two things the core supplies an external ACPI/AML
// implementation (§6): "core only supplies physical→virtual translation and
// raw port I/O." Declared without bodies; implemented in port_amd64.s with
// the OUT/IN instruction family.
func Outb(port uint16, val uint8)
func Inb(port uint16) uint8
func Outw(port uint16, val uint16)
func Inw(port uint16) uint16
func Outd(port uint16, val uint32)
func Ind(port uint16) uint32
