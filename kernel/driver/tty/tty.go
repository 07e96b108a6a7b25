// Package tty is the minimal glue between a console device and kfmt's output
// sink. Full terminal emulation (cursor addressing, line discipline) is an
// external collaborator's concern; this package only needs enough surface
// to let the HAL attach a console once both sides have been detected.
package tty

import (
	"gopheros/device/video/console"
	"io"
)

// Device is implemented by objects that can register themselves as a TTY.
type Device interface {
	io.Writer

	// AttachTo connects the TTY to a console device, routing subsequent
	// writes to it.
	AttachTo(console.Device)
}
