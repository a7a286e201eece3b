package engine

import (
	"strconv"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/fgraph"
)

// BuildRenderArgs turns a compiled filter graph into a full ffmpeg argument
// vector: one input per distinct media file, the serialized filter graph,
// explicit mappings for the composed video and audio pads, the profile's
// codec flags, and the output path. Preview and export differ only in the
// profile and in which compositor produced the graph.
func BuildRenderArgs(res *fgraph.Result, profile config.EncodeProfile, outPath string) []string {
	args := []string{
		"-y", "-hide_banner",
		"-loglevel", "error",
		"-progress", "pipe:1", "-nostats",
	}

	for _, in := range res.Inputs {
		args = append(args, "-i", in.Path)
	}

	args = append(args, "-filter_complex", res.Graph.String())
	args = append(args, "-map", "["+res.VideoOut+"]", "-map", "["+res.AudioOut+"]")

	args = appendProfile(args, profile)
	args = append(args, "-t", formatSeconds(res.Window.Duration()))
	args = append(args, profile.ExtraArgs...)
	args = append(args, outPath)
	return args
}

// BuildProxyArgs builds the argument vector for generating a proxy: a scaled
// copy with fast encode settings. Width follows from the source aspect ratio.
func BuildProxyArgs(srcPath, outPath string, profile config.EncodeProfile, height int) []string {
	args := []string{
		"-y", "-hide_banner",
		"-loglevel", "error",
		"-progress", "pipe:1", "-nostats",
		"-i", srcPath,
		"-vf", "scale=-2:" + strconv.Itoa(height),
	}
	args = appendProfile(args, profile)
	args = append(args, profile.ExtraArgs...)
	args = append(args, outPath)
	return args
}

func appendProfile(args []string, profile config.EncodeProfile) []string {
	args = append(args, "-c:v", profile.VideoCodec)
	if profile.Preset != "" {
		args = append(args, "-preset", profile.Preset)
	}
	if profile.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(profile.CRF))
	}
	if profile.PixelFormat != "" {
		args = append(args, "-pix_fmt", profile.PixelFormat)
	}
	if profile.AudioCodec != "" {
		args = append(args, "-c:a", profile.AudioCodec)
	}
	if profile.AudioBitrate != "" {
		args = append(args, "-b:a", profile.AudioBitrate)
	}
	return args
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
