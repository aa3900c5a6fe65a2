// Package pcap04 drives an array of PCAP04 capacitance-to-digital converter
// chips sharing one SPI bus behind a CD74HC4067 chip-select multiplexer.
//
// Design notes (datasheet + board schematic):
// • SPI mode 1 (CPOL=0, CPHA=1), MSB first, 1 MHz; full duplex, so every
//   byte read requires a transmitted filler byte (configurable, default 0x00).
// • No hardware chip-select pin: the mux drives exactly one CS low; routing
//   must happen strictly before a transfer and deselect strictly after.
// • Opcode-addressed memory/config/result interface: 8-bit control opcodes,
//   16-bit config opcodes, auto-incrementing block access.
// • Commands need per-opcode processing time before the next command; POR,
//   INIT and the NV operations are orders of magnitude slower than the rest.
package pcap04

import "time"

// SPI command opcodes. Wire-exact values; do not reorder bits.
const (
	// Memory access
	cmdWrMem byte = 0xA0 // write internal memory, auto-increment
	cmdRdMem byte = 0x20 // read internal memory, auto-increment

	// Configuration access (16-bit opcodes)
	cmdWrConfig uint16 = 0xA3C0 // write config registers, byte-wise
	cmdRdConfig uint16 = 0x23C0 // read config registers, byte-wise

	// Measurement results; OR'd with the per-sensor address offset
	cmdRdResult byte = 0x40

	// Control
	cmdPOR      byte = 0x88 // power-on reset
	cmdInit     byte = 0x8A // start chip operation
	cmdCDCStart byte = 0x8C // start capacitance conversion
	cmdDSPTrig  byte = 0x8D // trigger DSP processing
	cmdRDCStart byte = 0x8E // start resistance conversion

	// Non-volatile memory
	cmdNVStore  byte = 0x96
	cmdNVRecall byte = 0x99
	cmdNVErase  byte = 0x9C

	// Diagnostics
	cmdTestRead byte = 0x7E
)

// Test-read response codes.
const (
	testPass     byte = 0x11
	testSwapped  byte = 0x88 // byte order reversed on the link
	testInverted byte = 0xEE // data lines inverted
	testSwapInv  byte = 0x77 // both faults at once
)

// Array geometry and fixed payload sizes.
const (
	// NumChips is the number of chip positions behind the multiplexer.
	NumChips = 8

	// NumSensors is the fixed sensor count per chip.
	NumSensors = 6

	// ConfigSize is the exact config block length in bytes.
	ConfigSize = 52

	// FirmwareSize is the exact firmware image length in bytes.
	FirmwareSize = 1024

	// resultAddrStep spaces the per-sensor result registers: sensor i lives
	// at address offset i*resultAddrStep inside the RD_RESULT opcode.
	resultAddrStep = 4
)

// Named wait contract: the processing time the chip needs after a command
// before it accepts the next one. Callers that can poll (test-read) should
// prefer waitReady over sleeping the worst-case bound.
const (
	// tCommand follows simple control opcodes (conversion triggers, DSP).
	tCommand = 10 * time.Microsecond

	// tReset follows POR while the chip reboots.
	tReset = 20 * time.Millisecond

	// tInit follows INIT while the DSP comes up.
	tInit = 20 * time.Millisecond

	// tConfig lets a freshly written config block latch.
	tConfig = 10 * time.Millisecond

	// tNV bounds store/recall/erase on the non-volatile memory.
	tNV = 50 * time.Millisecond

	// tGuard is the setup/hold margin bracketing every SPI transfer.
	tGuard = time.Microsecond
)

// waitAfter maps an opcode to its processing-time contract.
func waitAfter(cmd byte) time.Duration {
	switch cmd {
	case cmdPOR:
		return tReset
	case cmdInit:
		return tInit
	case cmdNVStore, cmdNVRecall, cmdNVErase:
		return tNV
	default:
		return tCommand
	}
}

// resultAddr returns the RD_RESULT opcode addressing one sensor.
func resultAddr(sensor int) byte {
	return cmdRdResult | byte(sensor*resultAddrStep)
}
