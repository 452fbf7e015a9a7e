// Package labjack talks to LabJack T7 data-acquisition modules.
//
// Modules are addressed by register name ("AIN0", "DIO_STATE", "LUA_RUN")
// or by raw Modbus address. A Driver finds modules and opens a Conn to
// each; every Conn method is a synchronous register operation and every
// failure wraps ErrTransport.
//
// Two drivers are provided: ModbusDriver reaches real modules over Modbus
// TCP, and SimDriver serves an in-memory register file that emulates the
// parts of the firmware the daemon relies on (internal flash, the Lua
// engine, the digital status word).
package labjack
