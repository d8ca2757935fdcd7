package hrm

import (
	"errors"
	"math"
	"testing"
)

func uint16Ptr(v uint16) *uint16 { return &v }

func TestDecode_EmptyPayload(t *testing.T) {
	_, err := Decode(nil)
	if !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("Decode(nil) error = %v, want %v", err, ErrEmptyPayload)
	}

	_, err = Decode([]byte{})
	if !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("Decode([]) error = %v, want %v", err, ErrEmptyPayload)
	}
}

func TestDecode_Truncated(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		required int
	}{
		{"8-bit flag without bpm byte", []byte{0x00}, 2},
		{"16-bit flag with one bpm byte", []byte{0x01, 0x50}, 3},
		{"energy flag without energy bytes", []byte{0x08, 0x50}, 4},
		{"16-bit and energy with partial energy", []byte{0x09, 0x50, 0x00, 0x01}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.payload)
			if !errors.Is(err, ErrTruncated) {
				t.Fatalf("Decode(%x) error = %v, want ErrTruncated", tt.payload, err)
			}

			var te *TruncatedError
			if !errors.As(err, &te) {
				t.Fatalf("Decode(%x) error type = %T, want *TruncatedError", tt.payload, err)
			}
			if te.Required != tt.required {
				t.Errorf("Required = %d, want %d", te.Required, tt.required)
			}
			if te.Actual != len(tt.payload) {
				t.Errorf("Actual = %d, want %d", te.Actual, len(tt.payload))
			}
		})
	}
}

func TestDecode_BPM(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    uint16
	}{
		{"8-bit", []byte{0x00, 72}, 72},
		{"8-bit max", []byte{0x00, 0xff}, 255},
		{"16-bit little endian", []byte{0x01, 0x2c, 0x01}, 300},
		{"16-bit max", []byte{0x01, 0xff, 0xff}, 65535},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode(tt.payload)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if m.BPM != tt.want {
				t.Errorf("BPM = %d, want %d", m.BPM, tt.want)
			}
		})
	}
}

func TestDecode_SensorContact(t *testing.T) {
	tests := []struct {
		name  string
		flags byte
		want  SensorContact
	}{
		{"no support bits", 0x00, ContactUnsupported},
		{"detected bit without support is ignored", 0x02, ContactUnsupported},
		{"supported not detected", 0x04, ContactNotDetected},
		{"supported and detected", 0x06, ContactDetected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte{tt.flags, 60})
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if m.SensorContact != tt.want {
				t.Errorf("SensorContact = %v, want %v", m.SensorContact, tt.want)
			}
		})
	}
}

func TestDecode_EnergyExpended(t *testing.T) {
	m, err := Decode([]byte{0x08, 80, 0x34, 0x12})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if m.EnergyExpended == nil {
		t.Fatal("EnergyExpended = nil, want value")
	}
	if *m.EnergyExpended != 0x1234 {
		t.Errorf("EnergyExpended = %d, want %d", *m.EnergyExpended, 0x1234)
	}

	m, err = Decode([]byte{0x00, 80})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if m.EnergyExpended != nil {
		t.Errorf("EnergyExpended = %d, want nil", *m.EnergyExpended)
	}
}

func TestDecode_RRConversion(t *testing.T) {
	tests := []struct {
		raw  uint16
		want float64
	}{
		{840, 820.3125},
		{860, 839.84375},
		{1024, 1000.0},
		{0, 0},
	}

	for _, tt := range tests {
		payload := []byte{0x10, 70, byte(tt.raw), byte(tt.raw >> 8)}
		m, err := Decode(payload)
		if err != nil {
			t.Fatalf("Decode(%x) error = %v", payload, err)
		}
		if len(m.RRIntervals) != 1 {
			t.Fatalf("len(RRIntervals) = %d, want 1", len(m.RRIntervals))
		}
		if m.RRIntervals[0] != tt.want {
			t.Errorf("raw %d: RR = %v, want %v", tt.raw, m.RRIntervals[0], tt.want)
		}
	}
}

func TestDecode_RRAfterEnergy(t *testing.T) {
	// 16-bit bpm, energy, two RR entries
	payload := []byte{0x19, 0x48, 0x00, 0x10, 0x00, 0x48, 0x03, 0x5c, 0x03}
	m, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if m.BPM != 72 {
		t.Errorf("BPM = %d, want 72", m.BPM)
	}
	if m.EnergyExpended == nil || *m.EnergyExpended != 16 {
		t.Errorf("EnergyExpended = %v, want 16", m.EnergyExpended)
	}
	want := []float64{820.3125, 839.84375}
	if len(m.RRIntervals) != len(want) {
		t.Fatalf("RRIntervals = %v, want %v", m.RRIntervals, want)
	}
	for i := range want {
		if m.RRIntervals[i] != want[i] {
			t.Errorf("RRIntervals[%d] = %v, want %v", i, m.RRIntervals[i], want[i])
		}
	}
}

func TestDecode_RRTrailingByteDropped(t *testing.T) {
	payload := []byte{0x10, 70, 0x00, 0x04, 0x7f}
	m, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(m.RRIntervals) != 1 {
		t.Fatalf("len(RRIntervals) = %d, want 1", len(m.RRIntervals))
	}
	if m.RRIntervals[0] != 1000.0 {
		t.Errorf("RRIntervals[0] = %v, want 1000", m.RRIntervals[0])
	}
}

func TestDecode_RRFlagWithoutEntries(t *testing.T) {
	m, err := Decode([]byte{0x10, 70})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(m.RRIntervals) != 0 {
		t.Errorf("RRIntervals = %v, want empty", m.RRIntervals)
	}
}

func TestDecode_RRIgnoredWithoutFlag(t *testing.T) {
	m, err := Decode([]byte{0x00, 70, 0x00, 0x04})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if m.RRIntervals != nil {
		t.Errorf("RRIntervals = %v, want nil", m.RRIntervals)
	}
}

// TestEncodeDecode_AllFlagCombinations round-trips every combination of the
// 16-bit, contact-supported, energy and RR flags (with contact detected
// toggled alongside).
func TestEncodeDecode_AllFlagCombinations(t *testing.T) {
	const tolerance = 1000.0 / 1024.0 / 2

	for combo := 0; combo < 16; combo++ {
		wide := combo&1 != 0
		contact := combo&2 != 0
		energy := combo&4 != 0
		rr := combo&8 != 0

		for _, detected := range []bool{false, true} {
			want := Measurement{BPM: 64}
			if wide {
				want.BPM = 312
			}
			if contact {
				want.SensorContact = ContactNotDetected
				if detected {
					want.SensorContact = ContactDetected
				}
			}
			if energy {
				want.EnergyExpended = uint16Ptr(4321)
			}
			if rr {
				want.RRIntervals = []float64{820.3125, 839.84375, 1000, 612.5}
			}

			got, err := Decode(Encode(want, wide))
			if err != nil {
				t.Fatalf("combo %04b: Decode() error = %v", combo, err)
			}

			if got.BPM != want.BPM {
				t.Errorf("combo %04b: BPM = %d, want %d", combo, got.BPM, want.BPM)
			}
			if got.SensorContact != want.SensorContact {
				t.Errorf("combo %04b: SensorContact = %v, want %v", combo, got.SensorContact, want.SensorContact)
			}
			switch {
			case want.EnergyExpended == nil && got.EnergyExpended != nil:
				t.Errorf("combo %04b: EnergyExpended = %d, want nil", combo, *got.EnergyExpended)
			case want.EnergyExpended != nil && (got.EnergyExpended == nil || *got.EnergyExpended != *want.EnergyExpended):
				t.Errorf("combo %04b: EnergyExpended = %v, want %d", combo, got.EnergyExpended, *want.EnergyExpended)
			}
			if len(got.RRIntervals) != len(want.RRIntervals) {
				t.Fatalf("combo %04b: RRIntervals = %v, want %v", combo, got.RRIntervals, want.RRIntervals)
			}
			for i := range want.RRIntervals {
				if math.Abs(got.RRIntervals[i]-want.RRIntervals[i]) > tolerance {
					t.Errorf("combo %04b: RRIntervals[%d] = %v, want %v", combo, i, got.RRIntervals[i], want.RRIntervals[i])
				}
			}
		}
	}
}

func TestEncodeFlags_OmitsClearedFields(t *testing.T) {
	m := Measurement{
		BPM:            90,
		EnergyExpended: uint16Ptr(7),
		RRIntervals:    []float64{1000},
	}

	got := EncodeFlags(m, 0)
	want := []byte{0x00, 90}
	if string(got) != string(want) {
		t.Errorf("EncodeFlags() = %x, want %x", got, want)
	}
}

func TestMillisToRR_Clamps(t *testing.T) {
	if got := MillisToRR(-5); got != 0 {
		t.Errorf("MillisToRR(-5) = %d, want 0", got)
	}
	if got := MillisToRR(1e9); got != 65535 {
		t.Errorf("MillisToRR(1e9) = %d, want 65535", got)
	}
	if got := MillisToRR(1000); got != 1024 {
		t.Errorf("MillisToRR(1000) = %d, want 1024", got)
	}
}

func TestSensorContact_String(t *testing.T) {
	tests := map[SensorContact]string{
		ContactUnsupported: "unsupported",
		ContactNotDetected: "not_detected",
		ContactDetected:    "detected",
	}
	for c, want := range tests {
		if got := c.String(); got != want {
			t.Errorf("SensorContact(%d).String() = %q, want %q", c, got, want)
		}
	}
}

func FuzzDecode(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x00, 72})
	f.Add([]byte{0x19, 0x48, 0x00, 0x10, 0x00, 0x48, 0x03, 0x5c})
	f.Add([]byte{0x1f, 0xff, 0xff, 0xff, 0xff, 0x00})

	f.Fuzz(func(t *testing.T, payload []byte) {
		m, err := Decode(payload)
		if err != nil {
			if len(payload) > 0 && len(payload) >= MinLength(Flags(payload[0])) {
				t.Fatalf("Decode(%x) error = %v for payload meeting minimum length", payload, err)
			}
			return
		}

		flags := Flags(payload[0])
		if len(payload) < MinLength(flags) {
			t.Fatalf("Decode(%x) succeeded below minimum length %d", payload, MinLength(flags))
		}
		if !flags.Has(FlagRR) && m.RRIntervals != nil {
			t.Fatalf("Decode(%x) produced RR intervals without RR flag", payload)
		}
		if flags.Has(FlagRR) {
			wantRR := (len(payload) - MinLength(flags)) / 2
			if len(m.RRIntervals) != wantRR {
				t.Fatalf("Decode(%x) produced %d RR intervals, want %d", payload, len(m.RRIntervals), wantRR)
			}
		}
	})
}
