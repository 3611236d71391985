package dsp

import (
	"fmt"
	"strconv"
	"strings"
)

// OutputLabel is the filter graph pad mapped to the encoder.
const OutputLabel = "aout"

// BuildConcatGraph returns the filter_complex graph joining n inputs in order.
//
// Without silence it is a single n-way concat. With silence, input i and
// silence source i are joined into mid<i> for every input but the last, and a
// final n-way concat runs over the mid labels followed by the last input.
// Each label is consumed exactly once.
func BuildConcatGraph(n int, silence *Silence, format Format) (string, error) {
	if n < 1 {
		return "", fmt.Errorf("build filter graph: no input segments")
	}

	if silence == nil || silence.Duration <= 0 || n == 1 {
		var b strings.Builder
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "[%d:a]", i)
		}
		fmt.Fprintf(&b, "concat=n=%d:v=0:a=1[%s]", n, OutputLabel)
		return b.String(), nil
	}

	seconds := strconv.FormatFloat(silence.Duration.Seconds(), 'f', 3, 64)
	filters := make([]string, 0, 2*(n-1)+1)

	for i := 0; i < n-1; i++ {
		filters = append(filters, fmt.Sprintf("anullsrc=r=%d:cl=%s,atrim=duration=%s[sil%d]",
			format.SampleRate, channelLayout(format.Channels), seconds, i))
	}
	for i := 0; i < n-1; i++ {
		filters = append(filters, fmt.Sprintf("[%d:a][sil%d]concat=n=2:v=0:a=1[mid%d]", i, i, i))
	}

	var final strings.Builder
	for i := 0; i < n-1; i++ {
		fmt.Fprintf(&final, "[mid%d]", i)
	}
	fmt.Fprintf(&final, "[%d:a]concat=n=%d:v=0:a=1[%s]", n-1, n, OutputLabel)
	filters = append(filters, final.String())

	return strings.Join(filters, ";"), nil
}

func channelLayout(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2, 0:
		return "stereo"
	case 6:
		return "5.1"
	default:
		return fmt.Sprintf("%dc", channels)
	}
}
