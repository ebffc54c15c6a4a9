package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"soundsketch/errs"
)

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeDuration uses ffprobe to get the duration of an audio file in seconds.
// Malformed or unreadable audio surfaces as ErrDurationProbe.
func (t *Transcoder) ProbeDuration(ctx context.Context, inputFile string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		inputFile,
	}

	cmd := exec.CommandContext(ctx, t.ffprobePath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("%w: ffprobe failed for %s: %v\nFFprobe Error: %s",
			errs.ErrDurationProbe, inputFile, err, stderr.String())
	}

	var probeData ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return 0, fmt.Errorf("%w: failed to unmarshal ffprobe output for %s: %v",
			errs.ErrDurationProbe, inputFile, err)
	}

	if probeData.Format.Duration == "" {
		return 0, fmt.Errorf("%w: duration not found in ffprobe output for %s",
			errs.ErrDurationProbe, inputFile)
	}

	duration, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to parse duration %q for %s: %v",
			errs.ErrDurationProbe, probeData.Format.Duration, inputFile, err)
	}

	return duration, nil
}
