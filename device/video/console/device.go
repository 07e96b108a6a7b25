// Package console is the minimal glue the core needs from a system console.
// Rendering, fonts, and palettes are an external collaborator's concern
// (spec.md scopes the logger/console surface out of the core); all the HAL
// needs from a console driver is something it can route kfmt's output sink
// to once a TTY attaches.
package console

// Device is implemented by objects that can function as a system console.
// It is intentionally minimal: anything beyond "write a byte at the current
// position" belongs to the driver implementation, not this glue layer.
type Device interface {
	// WriteByte writes a single byte to the console at its current
	// cursor position, advancing the cursor and scrolling if needed.
	WriteByte(c byte) error

	// Clear resets the console to its default state.
	Clear()
}
