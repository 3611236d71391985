package dsp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	durationPattern = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	rmsPattern      = regexp.MustCompile(`RMS level dB:\s*(-?inf|-?\d+(?:\.\d+)?)`)
)

// ParseAnalysis extracts Metrics from the stderr of an astats+loudnorm run.
// A missing or malformed loudnorm block is an error.
func ParseAnalysis(stderr string) (*Metrics, error) {
	block, err := loudnormBlock(stderr)
	if err != nil {
		return nil, err
	}

	lufs, err := loudnormField(block, "input_i")
	if err != nil {
		return nil, err
	}
	peak, err := loudnormField(block, "input_tp")
	if err != nil {
		return nil, err
	}
	lra, err := loudnormField(block, "input_lra")
	if err != nil {
		return nil, err
	}
	thresh, err := loudnormField(block, "input_thresh")
	if err != nil {
		return nil, err
	}

	duration, err := parseDuration(stderr)
	if err != nil {
		return nil, err
	}
	rms, err := parseRMS(stderr)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Duration:      duration,
		PeakLevel:     peak,
		RMSLevel:      rms,
		LUFS:          lufs,
		LoudnessRange: lra,
		Threshold:     thresh,
	}, nil
}

// loudnormBlock returns the JSON object that carries input_i.
func loudnormBlock(stderr string) (string, error) {
	key := strings.LastIndex(stderr, `"input_i"`)
	if key < 0 {
		return "", fmt.Errorf("parse analysis: loudnorm metrics not found in ffmpeg output")
	}
	start := strings.LastIndex(stderr[:key], "{")
	end := strings.Index(stderr[key:], "}")
	if start < 0 || end < 0 {
		return "", fmt.Errorf("parse analysis: unterminated loudnorm metrics block")
	}
	block := stderr[start : key+end+1]
	if !gjson.Valid(block) {
		return "", fmt.Errorf("parse analysis: invalid loudnorm metrics json: %s", block)
	}
	return block, nil
}

func loudnormField(block, name string) (float64, error) {
	v := gjson.Get(block, name)
	if !v.Exists() {
		return 0, fmt.Errorf("parse analysis: loudnorm field %s missing", name)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("parse analysis: loudnorm field %s: %w", name, err)
	}
	return f, nil
}

func parseDuration(stderr string) (float64, error) {
	m := durationPattern.FindStringSubmatch(stderr)
	if m == nil {
		return 0, fmt.Errorf("parse analysis: duration not found in ffmpeg output")
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, fmt.Errorf("parse analysis: duration: %w", err)
	}
	return float64(h*3600+mins*60) + sec, nil
}

// parseRMS prefers the astats Overall section over per-channel values.
func parseRMS(stderr string) (float64, error) {
	section := stderr
	if i := strings.LastIndex(stderr, "Overall"); i >= 0 {
		section = stderr[i:]
	}
	matches := rmsPattern.FindAllStringSubmatch(section, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("parse analysis: rms level not found in ffmpeg output")
	}
	f, err := strconv.ParseFloat(matches[0][1], 64)
	if err != nil {
		return 0, fmt.Errorf("parse analysis: rms level: %w", err)
	}
	return f, nil
}
