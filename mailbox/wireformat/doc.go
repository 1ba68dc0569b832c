// Package wireformat implements the versioned, CRC-protected binary codec
// for the mailbox index header and index records.
//
// The codec is purely functional: buffer in, struct out, and back. It knows
// nothing about locks, files, or mutation policy - that lives in package
// mailbox. All multi-byte integers are big-endian; 64-bit fields are 8-byte
// aligned, matching the on-disk layout described in §6.2.
package wireformat
