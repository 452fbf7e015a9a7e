// Package codec turns raw LabJack register samples into typed monitor
// points and turns store command documents into register writes.
//
// Nothing in this package performs I/O. The positional layout of each
// batched read is defined here and only here: AntennaSample and
// BackendSample list the registers in the order the decoders expect.
package codec
