// Package discovery finds LabJack modules and creates one session per module.
//
// In live mode each module identifies itself through the FIO_STATE
// switches: values below 128 are antenna modules numbered by the low
// seven bits; values of 128 and above are backend modules whose low seven
// bits give the first of the ten antennas they serve.
//
// In simulate mode roles alternate, starting with an antenna: antennas
// are numbered 1, 2, 3 and backends 1, 11, 21.
package discovery
