// Package ffmpeg inspects downloaded media with ffprobe.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/locator"
)

// Tool names looked up through the locator.
const (
	FFmpegName  = "ffmpeg"
	FFprobeName = "ffprobe"
)

// Prober reads media metadata with ffprobe.
type Prober struct {
	ffprobePath string
}

// NewProber locates ffprobe. The error wraps domain.ErrExecutableNotFound
// when the helper is not installed.
func NewProber(loc locator.Locator) (*Prober, error) {
	path, err := loc.Locate(FFprobeName)
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	return &Prober{ffprobePath: path}, nil
}

// Path returns the resolved ffprobe path.
func (p *Prober) Path() string {
	return p.ffprobePath
}

type probeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
	Size     string `json:"size"`
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

// Probe extracts metadata from a media file.
func (p *Prober) Probe(ctx context.Context, path string) (*domain.MediaInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat media: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffprobe: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	info, err := ParseProbeOutput(output)
	if err != nil {
		return nil, err
	}
	if info.FileSize == 0 {
		info.FileSize = stat.Size()
	}
	return info, nil
}

// ParseProbeOutput decodes ffprobe's JSON output. The first video and
// audio streams win.
func ParseProbeOutput(data []byte) (*domain.MediaInfo, error) {
	var parsed probeOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}

	info := &domain.MediaInfo{}
	if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		info.Duration = d
	}
	if br, err := strconv.ParseInt(parsed.Format.BitRate, 10, 64); err == nil {
		info.Bitrate = br
	}
	if size, err := strconv.ParseInt(parsed.Format.Size, 10, 64); err == nil {
		info.FileSize = size
	}

	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
				info.Width = s.Width
				info.Height = s.Height
			}
		}
	}
	return info, nil
}

// Version returns the first line of a tool's -version output.
func Version(ctx context.Context, path string) (string, error) {
	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("%s -version: %w", path, err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}
