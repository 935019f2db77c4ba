package melt

import "fmt"

// DisableAudio drops the audio stream of the clips on the main target.
func (b *Builder) DisableAudio() *Builder {
	return b.AddOption(Option(KeyClipOption, List(KV("audio_index", Str("-1")))), DefaultTarget)
}

// DisableVideo drops the video stream of the clips on the main target.
func (b *Builder) DisableVideo() *Builder {
	return b.AddOption(Option(KeyClipOption, List(KV("video_index", Str("-1")))), DefaultTarget)
}

// BackgroundAudioOptions configures AddBackgroundAudio.
type BackgroundAudioOptions struct {
	// Delay inserts that many blank frames before the audio. Nil means none.
	Delay      *int
	Properties Node
}

// AddBackgroundAudio adds an audio track playing path on the main target.
func (b *Builder) AddBackgroundAudio(path string, opts BackgroundAudioOptions) *Builder {
	var track Node
	if opts.Delay != nil {
		track = track.Append(Pos(Option("blank", Values(Int(*opts.Delay)))))
	}
	track = track.Append(Pos(Str(path)))
	if opts.Properties.Len() > 0 {
		track = track.Append(Pos(opts.Properties))
	}
	return b.AddOption(Option("audio-track", track), DefaultTarget)
}

// WatermarkOptions places a watermark image. Zero Width or Height use the
// builder size. A composite.geometry property overrides the computed one.
type WatermarkOptions struct {
	Left       int
	Top        int
	Width      int
	Height     int
	Properties Node
}

// AddWatermark attaches an image to the main target, to the current clip or
// to the whole track when attachToAll is set.
func (b *Builder) AddWatermark(path string, attachToAll bool, opts WatermarkOptions) *Builder {
	if opts.Width == 0 {
		opts.Width = b.width
	}
	if opts.Height == 0 {
		opts.Height = b.height
	}

	props := opts.Properties.Without("width", "height", "left", "top")
	if !props.Has("composite.geometry") {
		geometry := fmt.Sprintf("%d/%d:%dx%d", opts.Left, opts.Top, opts.Width, opts.Height)
		props = props.Set("composite.geometry", Str(geometry))
	}

	return b.AddOption(attachment(attachToAll, "watermark:"+path, props), DefaultTarget)
}

// TextOverlayOptions configures AddTextOverlay. Properties are merged over
// the dynamictext defaults. A non-empty SlideFrom animates the text in from
// that edge over Duration frames.
type TextOverlayOptions struct {
	Properties Node
	SlideFrom  string
	Duration   int
	InOpacity  *int
	OutOpacity *int
}

func textDefaults() Node {
	return List(
		KV("in", Int(0)),
		KV("out", Int(0)),
		KV("fgcolour", Str("#ffffff")),
		KV("bgcolour", Int(0)),
		KV("olcolour", Str("#000000")),
		KV("outline", Int(1)),
		KV("pad", Str("0x0")),
		KV("size", Int(48)),
		KV("weight", Int(400)),
		KV("style", Str("normal")),
		KV("halign", Str("left")),
		KV("valign", Str("top")),
		KV("family", Str("Ubuntu")),
	)
}

// AddTextOverlay attaches a dynamictext filter rendering text on the main
// target.
func (b *Builder) AddTextOverlay(text string, attachToAll bool, opts TextOverlayOptions) *Builder {
	props := Merge(textDefaults(), opts.Properties)
	if opts.SlideFrom != "" {
		in, out := defaultOpacity, defaultOpacity
		if opts.InOpacity != nil {
			in = *opts.InOpacity
		}
		if opts.OutOpacity != nil {
			out = *opts.OutOpacity
		}
		props = props.Set("geometry", Str(SlideGeometry(opts.SlideFrom, opts.Duration, in, out)))
	}
	return b.AddOption(attachment(attachToAll, "dynamictext:"+text, props), DefaultTarget)
}

func attachment(attachToAll bool, filter string, props Node) Node {
	key := "attach"
	if attachToAll {
		key = "attach-track"
	}
	return List(KV(key, Values(Str(filter))), Pos(props))
}
