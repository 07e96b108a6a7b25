// Package device is the thin driver-registration glue the HAL uses to probe
// for hardware. Console and TTY devices are treated as external
// collaborators per spec.md's scope: this package supplies only the
// registration/ordering apparatus a probe pass needs, not a full driver
// framework.
package device

import (
	"gopheros/kernel"
	"io"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. Diagnostic output during
	// init is written to w.
	DriverInit(w io.Writer) *kernel.Error
}

// ProbeFn attempts to detect a particular piece of hardware. It returns a
// non-nil Driver if detection succeeded, or nil if the hardware is absent.
type ProbeFn func() Driver

// DetectOrder controls the relative ordering of driver probing. Lower values
// probe first.
type DetectOrder uint8

const (
	// DetectOrderEarly is used by drivers that other probes depend on
	// (e.g. a bus driver other devices are attached to).
	DetectOrderEarly DetectOrder = iota
	// DetectOrderBeforeACPI is used by drivers that should run ahead of
	// ACPI-dependent detection but after early detection.
	DetectOrderBeforeACPI
	// DetectOrderACPI is used by ACPI-dependent drivers.
	DetectOrderACPI
	// DetectOrderLast is used by drivers with no ordering dependencies.
	DetectOrderLast
)

// DriverInfo describes a registered driver candidate: its probe function and
// the order in which it should be tried relative to other candidates.
type DriverInfo struct {
	Probe ProbeFn
	Order DetectOrder
}

// DriverInfoList is a sortable list of DriverInfo, ordered by Order.
type DriverInfoList []*DriverInfo

func (l DriverInfoList) Len() int           { return len(l) }
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }
func (l DriverInfoList) Swap(i, j int)      { l[i], l[j] = l[j], l[i] }

var registeredDrivers DriverInfoList

// RegisterDriver adds a driver candidate to the registry. Drivers call this
// from an init() block.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the full set of registered driver candidates.
func DriverList() DriverInfoList {
	return registeredDrivers
}
