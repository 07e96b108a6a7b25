// Package hal is the hardware-abstraction glue that probes for console/TTY
// devices and wires whichever pair is found into kfmt's output sink. Actual
// console/TTY drivers (VGA text, framebuffer, serial) are external
// collaborators outside this spec's scope; this package never reimplements
// one, it only orchestrates probing and attachment.
package hal

import (
	"bytes"
	"gopheros/device"
	"gopheros/device/video/console"
	"gopheros/kernel/driver/tty"
	"gopheros/kernel/kfmt"
	"sort"
)

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	activeConsole console.Device
	activeTTY     tty.Device

	// activeDrivers tracks all initialized device drivers.
	activeDrivers []device.Driver
}

var (
	devices managedDevices
	strBuf  bytes.Buffer
)

// DetectHardware probes for hardware devices and initializes the appropriate
// drivers.
func DetectHardware() {
	drivers := device.DriverList()
	sort.Sort(drivers)

	probe(drivers)
}

// probe executes the probe function for each driver and invokes
// onDriverInit for each successfully initialized driver.
func probe(driverInfoList device.DriverInfoList) {
	var w = kfmt.PrefixWriter{Sink: kfmt.GetOutputSink()}

	for _, info := range driverInfoList {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&w, "initialized\n")
		onDriverInit(drv)
		devices.activeDrivers = append(devices.activeDrivers, drv)
	}
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized.
func onDriverInit(drv device.Driver) {
	switch drvImpl := drv.(type) {
	case console.Device:
		if devices.activeConsole == nil {
			devices.activeConsole = drvImpl
			if devices.activeTTY != nil {
				linkTTYToConsole()
			}
		}
	case tty.Device:
		if devices.activeTTY == nil {
			devices.activeTTY = drvImpl
			if devices.activeConsole != nil {
				linkTTYToConsole()
			}
		}
	}
}

// linkTTYToConsole connects the active TTY device to the active console
// device and routes kfmt's output sink through the TTY.
func linkTTYToConsole() {
	devices.activeTTY.AttachTo(devices.activeConsole)
	kfmt.SetOutputSink(devices.activeTTY)
}
