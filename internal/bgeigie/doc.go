// Package bgeigie decodes bGeigie drive-log sentences into measurements.
//
// It is intentionally small and free of side effects:
//   - verify the $...*CK XOR checksum
//   - convert DDM coordinates to signed decimal degrees
//   - decode one sentence per line, tolerating historical format variants
package bgeigie
