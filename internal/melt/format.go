package melt

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	FormatMP4  = "mp4"
	FormatWebM = "webm"
)

// ErrUnknownFormat is a warning: mp4 defaults are used instead.
var ErrUnknownFormat = errors.New("unknown output format")

var formatDefaults = map[string]func() Node{
	FormatMP4: func() Node {
		return encoderDefaults("libx264", "aac")
	},
	FormatWebM: func() Node {
		return encoderDefaults("libvpx", "libvorbis")
	},
}

func encoderDefaults(vcodec, acodec string) Node {
	return List(
		KV("vcodec", Str(vcodec)),
		KV("vb", Str("5000k")),
		KV("acodec", Str(acodec)),
		KV("ab", Str("128k")),
		KV("frequency", Int(44100)),
		KV("deinterlace", Int(1)),
	)
}

// FormatDefaults returns the consumer options for a known format.
func FormatDefaults(format string) (Node, bool) {
	fn, ok := formatDefaults[format]
	if !ok {
		return Node{}, false
	}
	return fn(), true
}

// Extension returns the lower-cased extension of path without the dot.
func Extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// FloatToString formats v with three decimals and sep as the decimal
// separator. Zero is rendered as "0".
func FloatToString(v float64, sep string) string {
	if v == 0 {
		return "0"
	}
	s := strconv.FormatFloat(v, 'f', 3, 64)
	if sep != "" && sep != "." {
		s = strings.Replace(s, ".", sep, 1)
	}
	return s
}
