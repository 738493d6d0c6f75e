// Package hash provides the CRC32-Castagnoli checksum that guards snapshot
// bodies.
//
//	sum := hash.CRC32C(body)
//
//	h := hash.NewCRC32C()
//	h.Write(chunk)
//	sum = h.Sum32()
package hash
