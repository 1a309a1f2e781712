// Package filesystem provides the filesystem abstraction jin writes through.
//
// Production code runs on the OS filesystem; unit tests swap in an in-memory
// afero filesystem. Every workspace write goes through AtomicWriteFile so a
// crash can never leave a half-written file behind.
package filesystem
