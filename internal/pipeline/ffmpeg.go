package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/reviewhub/media-service/internal/types"
)

// FFmpegTranscoder implements Transcoder by shelling out to ffmpeg/ffprobe.
// Buffers are staged through temp files because ffmpeg needs seekable input
// for most containers.
type FFmpegTranscoder struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegTranscoder locates the ffmpeg and ffprobe binaries on PATH.
func NewFFmpegTranscoder() (*FFmpegTranscoder, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &FFmpegTranscoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}, nil
}

// probeOutput mirrors the ffprobe -of json layout for the fields we read.
type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Channels     int    `json:"channels"`
		SampleRate   string `json:"sample_rate"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
}

// Probe extracts stream metadata with ffprobe.
func (t *FFmpegTranscoder) Probe(ctx context.Context, src []byte) (*types.VideoMetadata, error) {
	in, cleanup, err := stageInput(src)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "error",
		"-show_streams",
		"-show_format",
		"-of", "json",
		in,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probed probeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	meta := &types.VideoMetadata{
		Container: probed.Format.FormatName,
	}
	meta.Duration, _ = strconv.ParseFloat(probed.Format.Duration, 64)
	meta.BitRate, _ = strconv.ParseInt(probed.Format.BitRate, 10, 64)

	for _, stream := range probed.Streams {
		switch stream.CodecType {
		case "video":
			if meta.VideoCodec == "" {
				meta.VideoCodec = stream.CodecName
				meta.FPS = parseFrameRate(stream.AvgFrameRate)
			}
		case "audio":
			if meta.AudioCodec == "" {
				meta.AudioCodec = stream.CodecName
				meta.AudioChannels = stream.Channels
				meta.SampleRate, _ = strconv.Atoi(stream.SampleRate)
			}
		}
	}

	if meta.VideoCodec == "" {
		return nil, fmt.Errorf("no video stream found")
	}

	return meta, nil
}

// ExtractFrame grabs one representative frame as a JPEG, scaled to fit
// maxSize while keeping aspect ratio.
func (t *FFmpegTranscoder) ExtractFrame(ctx context.Context, src []byte, maxSize int) ([]byte, error) {
	in, cleanup, err := stageInput(src)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out := filepath.Join(filepath.Dir(in), "frame.jpg")
	defer os.Remove(out)

	// The thumbnail filter picks the most representative frame from the
	// first batch instead of a potentially black opening frame.
	filter := fmt.Sprintf("thumbnail,scale=%d:%d:force_original_aspect_ratio=decrease", maxSize, maxSize)
	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-i", in,
		"-vf", filter,
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		out,
	)
	if combined, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame extraction failed: %w: %s", err, tail(combined))
	}

	return os.ReadFile(out)
}

// Transcode re-encodes the source into one quality tier (H.264/AAC in MP4).
func (t *FFmpegTranscoder) Transcode(ctx context.Context, src []byte, tier TierSpec) ([]byte, error) {
	in, cleanup, err := stageInput(src)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out := filepath.Join(filepath.Dir(in), fmt.Sprintf("%s.mp4", tier.Role))
	defer os.Remove(out)

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-i", in,
		"-vf", fmt.Sprintf("scale=-2:'min(%d,ih)'", tier.MaxHeight),
		"-c:v", "libx264",
		"-crf", strconv.Itoa(tier.CRF),
		"-preset", "veryfast",
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-y",
		out,
	)
	if combined, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg transcode to %s failed: %w: %s", tier.Role, err, tail(combined))
	}

	return os.ReadFile(out)
}

// stageInput writes the buffer into a fresh temp directory and returns the
// file path plus a cleanup func removing the whole directory.
func stageInput(src []byte) (string, func(), error) {
	dir, err := os.MkdirTemp("", "media-transcode-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	in := filepath.Join(dir, "input")
	if err := os.WriteFile(in, src, 0o600); err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("stage input: %w", err)
	}
	return in, func() { os.RemoveAll(dir) }, nil
}

// parseFrameRate turns ffprobe's "30000/1001" fractions into a float.
func parseFrameRate(rate string) float64 {
	parts := strings.SplitN(rate, "/", 2)
	if len(parts) == 2 {
		num, err1 := strconv.ParseFloat(parts[0], 64)
		den, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 == nil && err2 == nil && den != 0 {
			return num / den
		}
		return 0
	}
	fps, _ := strconv.ParseFloat(rate, 64)
	return fps
}

// tail keeps error output readable when ffmpeg dumps its full log.
func tail(out []byte) string {
	const max = 300
	s := strings.TrimSpace(string(out))
	if len(s) > max {
		return "..." + s[len(s)-max:]
	}
	return s
}
