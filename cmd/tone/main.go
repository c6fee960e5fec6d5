package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"wordflight/internal/notify"
)

func main() {
	out := flag.String("o", "notification.wav", "Output file")
	rate := flag.Int("rate", 44100, "Sample rate in Hz")
	freq := flag.Float64("freq", notify.DefaultTone.Frequency, "Frequency in Hz")
	wave := flag.String("wave", string(notify.DefaultTone.Waveform), "Waveform: sine, square, triangle or sawtooth")
	duration := flag.Duration("d", notify.DefaultTone.Duration, "Duration")
	flag.Parse()

	tone := notify.DefaultTone
	tone.Frequency = *freq
	tone.Waveform = notify.Waveform(*wave)
	tone.Duration = *duration
	if tone.Duration <= tone.Attack {
		tone.Duration = tone.Attack + 10*time.Millisecond
	}

	if err := os.WriteFile(*out, tone.WAV(*rate), 0o644); err != nil {
		fmt.Printf("Error writing tone: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *out)
}
