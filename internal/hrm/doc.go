// Package hrm decodes the Bluetooth Heart Rate Measurement characteristic
// (UUID 0x2A37).
//
// A payload starts with a flags byte followed by the heart rate value and
// optional fields:
//
//	bit 0  heart rate is uint16 (little-endian) instead of uint8
//	bit 1  sensor contact detected (meaningful only with bit 2)
//	bit 2  sensor contact feature supported
//	bit 3  energy expended present (uint16 LE, joules)
//	bit 4  RR intervals present (uint16 LE each, 1/1024 s units)
//
// [Decode] is pure and deterministic. Malformed payloads produce
// [ErrEmptyPayload] or a [*TruncatedError]; callers are expected to log and
// carry on with the next notification.
package hrm
