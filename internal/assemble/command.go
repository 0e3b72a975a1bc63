// Package assemble builds the final deliverable with FFmpeg: per-scene
// clips, concatenation, and an optional audio track. Command construction
// is kept separate from execution so the argument lists stay testable.
package assemble

import (
	"fmt"
	"strings"
)

// Command is one FFmpeg invocation.
type Command struct {
	Path string
	Args []string
}

func (c Command) String() string {
	return c.Path + " " + strings.Join(c.Args, " ")
}

func ffmpeg(args ...string) Command {
	return Command{Path: "ffmpeg", Args: args}
}

// ImageClip turns a still image into a video clip of the given length,
// scaled and padded to the target dimensions.
func ImageClip(imagePath, outputPath string, seconds, width, height int) Command {
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		width, height, width, height)
	return ffmpeg(
		"-loop", "1",
		"-t", fmt.Sprintf("%d", seconds),
		"-i", imagePath,
		"-vf", filter,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", "30",
		"-y",
		outputPath,
	)
}

// ConcatList renders the concat demuxer file listing the given clips.
func ConcatList(clipPaths []string) string {
	var b strings.Builder
	for _, p := range clipPaths {
		fmt.Fprintf(&b, "file '%s'\n", p)
	}
	return b.String()
}

// ConcatClips joins the clips named in listPath, re-encoding for broad
// player compatibility.
func ConcatClips(listPath, outputPath string) Command {
	return ffmpeg(
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-profile:v", "high",
		"-level", "4.0",
		"-crf", "23",
		"-preset", "medium",
		"-movflags", "+faststart",
		"-y",
		outputPath,
	)
}

// ConcatClipsCopy is the stream-copy fallback used when re-encoding fails.
func ConcatClipsCopy(listPath, outputPath string) Command {
	return ffmpeg(
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		outputPath,
	)
}

// MuxAudio lays an audio track under a video, ending at the shorter stream.
func MuxAudio(videoPath, audioPath, outputPath string) Command {
	return ffmpeg(
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		"-y",
		outputPath,
	)
}
