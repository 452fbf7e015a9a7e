// Package script manages the Lua control script that runs on antenna
// modules: finding it on disk, uploading it, starting it, and persisting
// it to module flash so it runs at power-up.
package script
