package console

import "gopheros/device"

// ProbeFuncs is a slice of console device probe functions. Nothing in this
// module reads it: the HAL probes the drivers registered through
// device.RegisterDriver (device.DriverList), and each driver registers
// itself there from an init() block instead of appending here.
var ProbeFuncs []device.ProbeFn
