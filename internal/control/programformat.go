package control

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/airplayout/core/internal/fence"
)

// ProgramFormat is the decoded form of StartChannel's program_format_json
// (spec §6: "carries fps (rational string), resolution, sample rate,
// channels").
type ProgramFormat struct {
	FPS        fence.Rate `json:"-"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	SampleRate int        `json:"sampleRate"`
	Channels   int        `json:"channels"`
}

// programFormatWire is the JSON wire shape; FPS arrives as a rational
// string ("30000/1001") rather than a float, so the session rate is never
// subject to float round-trip error (spec §4.2 discipline applied to the
// wire boundary too).
type programFormatWire struct {
	FPS        string `json:"fps"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// ParseProgramFormat decodes program_format_json into a ProgramFormat,
// rejecting any fps string that isn't an exact "num/den" pair.
func ParseProgramFormat(raw []byte) (ProgramFormat, error) {
	var wire programFormatWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ProgramFormat{}, fmt.Errorf("control: parse program_format_json: %w", err)
	}

	rate, err := parseRate(wire.FPS)
	if err != nil {
		return ProgramFormat{}, err
	}

	return ProgramFormat{
		FPS:        rate,
		Width:      wire.Width,
		Height:     wire.Height,
		SampleRate: wire.SampleRate,
		Channels:   wire.Channels,
	}, nil
}

func parseRate(s string) (fence.Rate, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return fence.Rate{}, fmt.Errorf("control: fps %q is not a num/den rational string", s)
	}
	num, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return fence.Rate{}, fmt.Errorf("control: fps numerator %q: %w", parts[0], err)
	}
	den, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return fence.Rate{}, fmt.Errorf("control: fps denominator %q: %w", parts[1], err)
	}
	if num <= 0 || den <= 0 {
		return fence.Rate{}, fmt.Errorf("control: fps %q must have positive numerator and denominator", s)
	}
	return fence.Rate{Num: num, Den: den}, nil
}
