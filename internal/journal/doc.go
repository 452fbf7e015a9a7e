// Package journal keeps a durable record of antenna commands and
// calibration decisions in SQLite.
//
// SQLiteRepository implements session.Journal, so each antenna session
// writes one row per received command (with its outcome) and one row per
// calibration table it evaluated. The status API reads the rows back
// through the List methods.
package journal
