// Package encoder supervises the external ffmpeg process that turns raw
// meeting media chunks into a durable recording file. Each recording session
// owns exactly one encoder.
package encoder

import (
	"fmt"
	"strconv"
)

// Quality identifies an encoding quality tier.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
	Quality4K     Quality = "4k"
)

// Profile holds the encoder settings for a quality tier.
type Profile struct {
	Name         Quality
	Width        int
	Height       int
	FrameRate    int
	VideoBitrate string
	AudioBitrate string
	AudioOnly    bool
}

// profiles maps quality tiers to encoder settings.
var profiles = map[Quality]Profile{
	QualityLow:    {Name: QualityLow, Width: 640, Height: 360, FrameRate: 15, VideoBitrate: "500k", AudioBitrate: "64k"},
	QualityMedium: {Name: QualityMedium, Width: 1280, Height: 720, FrameRate: 30, VideoBitrate: "1500k", AudioBitrate: "128k"},
	QualityHigh:   {Name: QualityHigh, Width: 1920, Height: 1080, FrameRate: 30, VideoBitrate: "4000k", AudioBitrate: "192k"},
	Quality4K:     {Name: Quality4K, Width: 3840, Height: 2160, FrameRate: 30, VideoBitrate: "12000k", AudioBitrate: "192k"},
}

// ProfileFor returns the encoder profile for a quality tier. An audio-only
// profile drops the video settings entirely.
func ProfileFor(quality Quality, audioOnly bool) (Profile, error) {
	if audioOnly {
		return Profile{Name: quality, AudioBitrate: "128k", AudioOnly: true}, nil
	}
	p, ok := profiles[quality]
	if !ok {
		return Profile{}, fmt.Errorf("unknown quality tier %q", quality)
	}
	return p, nil
}

// Extension returns the output container extension for the profile.
func (p Profile) Extension() string {
	if p.AudioOnly {
		return "m4a"
	}
	return "mp4"
}

// ContentType returns the MIME type of the output container.
func (p Profile) ContentType() string {
	if p.AudioOnly {
		return "audio/mp4"
	}
	return "video/mp4"
}

// Args builds the ffmpeg argument list for encoding a stdin byte feed into
// outputPath. The input is raw muxed webm from the capture layer.
func (p Profile) Args(logLevel, outputPath string) []string {
	args := []string{
		"-loglevel", logLevel,
		"-hide_banner",
		"-y",
		"-f", "webm",
		"-i", "pipe:0",
	}

	if p.AudioOnly {
		args = append(args,
			"-vn",
			"-c:a", "aac",
			"-b:a", p.AudioBitrate,
		)
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-b:v", p.VideoBitrate,
			"-r", strconv.Itoa(p.FrameRate),
			"-vf", fmt.Sprintf("scale=%d:%d", p.Width, p.Height),
			"-c:a", "aac",
			"-b:a", p.AudioBitrate,
		)
	}

	// Fragmented MP4 so the file stays playable if the process dies
	// before writing a trailer.
	args = append(args,
		"-movflags", "+frag_keyframe+empty_moov",
		outputPath,
	)
	return args
}
