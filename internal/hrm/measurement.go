package hrm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Flags is the leading bitfield of a measurement payload.
type Flags uint8

const (
	FlagUint16         Flags = 1 << 0
	FlagContact        Flags = 1 << 1
	FlagContactSupport Flags = 1 << 2
	FlagEnergy         Flags = 1 << 3
	FlagRR             Flags = 1 << 4
)

// Has reports whether all bits of f2 are set in f.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// rrUnitsPerSecond is the resolution of a raw RR interval.
const rrUnitsPerSecond = 1024.0

// SensorContact is the tri-state skin contact indicator.
type SensorContact uint8

const (
	// ContactUnsupported means the sensor cannot detect skin contact.
	ContactUnsupported SensorContact = iota
	// ContactNotDetected means the sensor supports contact detection but has none.
	ContactNotDetected
	// ContactDetected means the sensor currently detects skin contact.
	ContactDetected
)

// String returns the contact state name.
func (c SensorContact) String() string {
	switch c {
	case ContactNotDetected:
		return "not_detected"
	case ContactDetected:
		return "detected"
	default:
		return "unsupported"
	}
}

// Measurement is a decoded heart rate notification.
type Measurement struct {
	// BPM is the heart rate in beats per minute.
	BPM uint16

	// SensorContact reports skin contact if the sensor supports it.
	SensorContact SensorContact

	// EnergyExpended is the cumulative energy in joules, nil when absent.
	EnergyExpended *uint16

	// RRIntervals are beat-to-beat intervals in milliseconds, in wire order.
	RRIntervals []float64
}

var (
	// ErrEmptyPayload is returned by Decode for a zero-length payload.
	ErrEmptyPayload = errors.New("empty heart rate payload")

	// ErrTruncated matches any *TruncatedError via errors.Is.
	ErrTruncated = errors.New("truncated heart rate payload")
)

// TruncatedError reports a payload shorter than its flags require.
type TruncatedError struct {
	Required int
	Actual   int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("heart rate payload too short: %d bytes, need %d", e.Actual, e.Required)
}

// Is lets errors.Is(err, ErrTruncated) match.
func (e *TruncatedError) Is(target error) bool {
	return target == ErrTruncated
}

// MinLength returns the shortest valid payload for the given flags.
func MinLength(f Flags) int {
	n := 2
	if f.Has(FlagUint16) {
		n = 3
	}
	if f.Has(FlagEnergy) {
		n += 2
	}
	return n
}

// Decode parses a Heart Rate Measurement payload.
func Decode(payload []byte) (Measurement, error) {
	if len(payload) == 0 {
		return Measurement{}, ErrEmptyPayload
	}

	flags := Flags(payload[0])
	if need := MinLength(flags); len(payload) < need {
		return Measurement{}, &TruncatedError{Required: need, Actual: len(payload)}
	}

	var m Measurement
	offset := 1
	if flags.Has(FlagUint16) {
		m.BPM = binary.LittleEndian.Uint16(payload[offset:])
		offset += 2
	} else {
		m.BPM = uint16(payload[offset])
		offset++
	}

	switch {
	case !flags.Has(FlagContactSupport):
		m.SensorContact = ContactUnsupported
	case flags.Has(FlagContact):
		m.SensorContact = ContactDetected
	default:
		m.SensorContact = ContactNotDetected
	}

	if flags.Has(FlagEnergy) {
		energy := binary.LittleEndian.Uint16(payload[offset:])
		m.EnergyExpended = &energy
		offset += 2
	}

	if flags.Has(FlagRR) {
		// an odd trailing byte cannot form an entry and is dropped
		count := (len(payload) - offset) / 2
		m.RRIntervals = make([]float64, 0, count)
		for ; offset+2 <= len(payload); offset += 2 {
			raw := binary.LittleEndian.Uint16(payload[offset:])
			m.RRIntervals = append(m.RRIntervals, RRToMillis(raw))
		}
	}

	return m, nil
}

// RRToMillis converts a raw 1/1024 s RR interval to milliseconds.
func RRToMillis(raw uint16) float64 {
	return float64(raw) * 1000.0 / rrUnitsPerSecond
}

// MillisToRR converts milliseconds to the nearest raw RR unit, clamped to uint16.
func MillisToRR(ms float64) uint16 {
	raw := ms*rrUnitsPerSecond/1000.0 + 0.5
	switch {
	case raw <= 0:
		return 0
	case raw >= 65535:
		return 65535
	}
	return uint16(raw)
}

// Encode builds a payload for m. The 16-bit and RR flags are taken from
// wide and the presence of RR intervals; contact and energy follow m.
func Encode(m Measurement, wide bool) []byte {
	var flags Flags
	if wide || m.BPM > 0xff {
		flags |= FlagUint16
	}
	switch m.SensorContact {
	case ContactDetected:
		flags |= FlagContactSupport | FlagContact
	case ContactNotDetected:
		flags |= FlagContactSupport
	}
	if m.EnergyExpended != nil {
		flags |= FlagEnergy
	}
	if len(m.RRIntervals) > 0 {
		flags |= FlagRR
	}
	return EncodeFlags(m, flags)
}

// EncodeFlags builds a payload for m using exactly the given flags. Fields
// whose flag is clear are omitted even if set on m.
func EncodeFlags(m Measurement, flags Flags) []byte {
	buf := make([]byte, 0, MinLength(flags)+2*len(m.RRIntervals))
	buf = append(buf, byte(flags))

	if flags.Has(FlagUint16) {
		buf = binary.LittleEndian.AppendUint16(buf, m.BPM)
	} else {
		buf = append(buf, byte(m.BPM))
	}

	if flags.Has(FlagEnergy) {
		var energy uint16
		if m.EnergyExpended != nil {
			energy = *m.EnergyExpended
		}
		buf = binary.LittleEndian.AppendUint16(buf, energy)
	}

	if flags.Has(FlagRR) {
		for _, ms := range m.RRIntervals {
			buf = binary.LittleEndian.AppendUint16(buf, MillisToRR(ms))
		}
	}

	return buf
}
