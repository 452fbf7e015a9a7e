// Package archive writes every monitor publication to a time-series
// database.
//
// Antenna sets go to the ant_mon measurement and backend sets to
// beb_mon, each tagged with ant_num and the site id. Startup snapshots
// are not archived. NaN and infinite readings, which a disconnected
// channel can produce, are dropped field by field.
package archive
