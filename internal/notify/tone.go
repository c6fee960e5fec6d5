package notify

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
)

type Waveform string

const (
	Sine     Waveform = "sine"
	Square   Waveform = "square"
	Triangle Waveform = "triangle"
	Sawtooth Waveform = "sawtooth"
)

// Tone is a short synthesized beep: a linear attack to Peak followed by an
// exponential decay to Floor at the end of Duration.
type Tone struct {
	Frequency float64
	Waveform  Waveform
	Duration  time.Duration
	Attack    time.Duration
	Peak      float64
	Floor     float64
}

// DefaultTone is the new message beep.
var DefaultTone = Tone{
	Frequency: 800,
	Waveform:  Sine,
	Duration:  300 * time.Millisecond,
	Attack:    10 * time.Millisecond,
	Peak:      0.1,
	Floor:     0.001,
}

// Samples renders the tone as float samples in [-1, 1].
func (t Tone) Samples(sampleRate int) []float64 {
	n := int(t.Duration.Seconds() * float64(sampleRate))
	out := make([]float64, n)

	attack := t.Attack.Seconds()
	total := t.Duration.Seconds()
	decay := total - attack
	for i := range out {
		at := float64(i) / float64(sampleRate)
		out[i] = t.gain(at, attack, decay) * t.oscillate(at)
	}
	return out
}

func (t Tone) gain(at, attack, decay float64) float64 {
	if at < attack {
		return t.Peak * at / attack
	}
	if decay <= 0 || t.Peak <= 0 || t.Floor <= 0 {
		return t.Peak
	}
	// Exponential ramp from Peak to Floor over the decay interval.
	return t.Peak * math.Pow(t.Floor/t.Peak, (at-attack)/decay)
}

func (t Tone) oscillate(at float64) float64 {
	phase := math.Mod(at*t.Frequency, 1)
	switch t.Waveform {
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Triangle:
		return 1 - 4*math.Abs(phase-0.5)
	case Sawtooth:
		return 2*phase - 1
	}
	return math.Sin(2 * math.Pi * phase)
}

// WAV encodes the tone as 16-bit mono PCM.
func (t Tone) WAV(sampleRate int) []byte {
	samples := t.Samples(sampleRate)
	dataLen := uint32(len(samples) * 2)

	var buf bytes.Buffer
	buf.Grow(44 + int(dataLen))

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))           // chunk size
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))            // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))            // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))   // sample rate
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))            // block align
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataLen)
	for _, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		_ = binary.Write(&buf, binary.LittleEndian, int16(s*math.MaxInt16))
	}
	return buf.Bytes()
}
