// Package board describes the rigs the tools expect: which bus
// controllers to scan and where the multiplexer and EEPROM parts may
// answer. A profile carries wiring facts only, no operating parameters.
package board

// Signal records the electrical expectations for one bus line.
type Signal struct {
	Name     string
	PullUp   bool   // external pull-up fitted
	Standard string // I/O standard of the pad
}

// Profile describes one rig. Candidate lists are in probe order.
type Profile struct {
	Name        string
	Controllers []int
	MuxAddrs    []uint16
	EepromAddrs []uint16
	SCL, SDA    Signal
}

// Default is the evaluation rig: one controller, a 4-channel mux at 0x74,
// EEPROM parts strapped at 0x54 and 0x55, both lines pulled up at 1.8V.
var Default = Profile{
	Name:        "eval",
	Controllers: []int{0},
	MuxAddrs:    []uint16{0x74},
	EepromAddrs: []uint16{0x54, 0x55},
	SCL:         Signal{Name: "SCL", PullUp: true, Standard: "LVCMOS18"},
	SDA:         Signal{Name: "SDA", PullUp: true, Standard: "LVCMOS18"},
}
