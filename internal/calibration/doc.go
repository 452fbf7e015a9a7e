// Package calibration keeps the inclinometer calibration table in module
// flash in step with the table held in the store.
//
// Tables live in the user area of internal flash starting at offset 0,
// one float32 per 4-byte slot. Writes happen only when the stored table
// differs, to spare flash erase cycles.
package calibration
