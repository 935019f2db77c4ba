package melt

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Transition names accepted by AddReadyMadeTransition.
const (
	TransitionFade           = "fade"
	TransitionShiftRightIn   = "shiftRightIn"
	TransitionShiftRightOut  = "shiftRightOut"
	TransitionShiftLeftIn    = "shiftLeftIn"
	TransitionShiftLeftOut   = "shiftLeftOut"
	TransitionShiftTopIn     = "shiftTopIn"
	TransitionShiftTopOut    = "shiftTopOut"
	TransitionShiftBottomIn  = "shiftBottomIn"
	TransitionShiftBottomOut = "shiftBottomOut"
	TransitionWipeIn         = "wipeIn"
	TransitionWipeOut        = "wipeOut"
)

const (
	defaultOpacity  = 100
	defaultWipeName = "linear_x.pgm"
	defaultSlideLen = 50
)

// ErrUnsupportedTransition is returned for transition names outside the fixed
// set.
var ErrUnsupportedTransition = errors.New("unsupported transition")

// TransitionOptions tunes the generated mixer. Zero sizes fall back to Width
// and Height, nil opacities fall back to 100.
type TransitionOptions struct {
	Width      int      `json:"width,omitempty"`
	Height     int      `json:"height,omitempty"`
	InWidth    int      `json:"in_width,omitempty"`
	InHeight   int      `json:"in_height,omitempty"`
	OutWidth   int      `json:"out_width,omitempty"`
	OutHeight  int      `json:"out_height,omitempty"`
	InOpacity  *int     `json:"in_opacity,omitempty"`
	OutOpacity *int     `json:"out_opacity,omitempty"`
	WipeName   string   `json:"wipe_name,omitempty"`
	WipePath   string   `json:"wipe_path,omitempty"`
	Softness   *float64 `json:"softness,omitempty"`
}

// Opacity is a convenience for filling the optional opacity fields.
func Opacity(v int) *int { return &v }

// Transitions lists the supported transition names.
func Transitions() []string {
	return []string{
		TransitionFade,
		TransitionShiftRightIn, TransitionShiftRightOut,
		TransitionShiftLeftIn, TransitionShiftLeftOut,
		TransitionShiftTopIn, TransitionShiftTopOut,
		TransitionShiftBottomIn, TransitionShiftBottomOut,
		TransitionWipeIn, TransitionWipeOut,
	}
}

// shift describes where the off-screen edge of a shift transition sits.
type shift struct {
	axisY    bool
	negative bool
	outgoing bool
}

var shifts = map[string]shift{
	TransitionShiftRightIn:   {},
	TransitionShiftRightOut:  {outgoing: true},
	TransitionShiftLeftIn:    {negative: true},
	TransitionShiftLeftOut:   {negative: true, outgoing: true},
	TransitionShiftTopIn:     {axisY: true, negative: true},
	TransitionShiftTopOut:    {axisY: true, negative: true, outgoing: true},
	TransitionShiftBottomIn:  {axisY: true},
	TransitionShiftBottomOut: {axisY: true, outgoing: true},
}

// TransitionNodes returns the option nodes for a ready-made transition: the
// mix length first, then the mixer. wipesDir resolves wipe resources by name.
func TransitionNodes(kind string, durationFrames int, opts TransitionOptions, wipesDir string) ([]Node, error) {
	mix := Option("mix", Int(durationFrames))

	switch kind {
	case TransitionFade:
		return []Node{mix, Option("mixer", Str("luma"))}, nil
	case TransitionWipeIn, TransitionWipeOut:
		return []Node{mix, wipeMixer(kind, opts, wipesDir)}, nil
	}

	s, ok := shifts[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTransition, kind)
	}
	geometry := shiftGeometry(s, durationFrames, opts.withDefaults())
	mixer := Values(Str("region"))
	if s.outgoing {
		mixer = mixer.Append(Pos(List(KV("a_track", Int(1)), KV("b_track", Int(0)))))
	}
	mixer = mixer.Append(Pos(Option("composite.geometry", Str(geometry))))
	return []Node{mix, Option("mixer", mixer)}, nil
}

func (o TransitionOptions) withDefaults() TransitionOptions {
	if o.InWidth == 0 {
		o.InWidth = o.Width
	}
	if o.InHeight == 0 {
		o.InHeight = o.Height
	}
	if o.OutWidth == 0 {
		o.OutWidth = o.Width
	}
	if o.OutHeight == 0 {
		o.OutHeight = o.Height
	}
	if o.InOpacity == nil {
		o.InOpacity = Opacity(defaultOpacity)
	}
	if o.OutOpacity == nil {
		o.OutOpacity = Opacity(defaultOpacity)
	}
	return o
}

// shiftGeometry builds the two-keyframe composite geometry for a shift
// transition. Incoming clips travel from the edge to 0/0, outgoing clips from
// 0/0 to the edge.
func shiftGeometry(s shift, durationFrames int, o TransitionOptions) string {
	var edge string
	if s.outgoing {
		edge = offset(s, o.InWidth, o.InHeight)
		return fmt.Sprintf("0=0/0:%dx%d:%d;%d=%s:%dx%d:%d",
			o.InWidth, o.InHeight, *o.InOpacity,
			durationFrames, edge, o.OutWidth, o.OutHeight, *o.OutOpacity)
	}
	edge = offset(s, o.OutWidth, o.OutHeight)
	return fmt.Sprintf("0=%s:%dx%d:%d;%d=0/0:%dx%d:%d",
		edge, o.InWidth, o.InHeight, *o.InOpacity,
		durationFrames, o.OutWidth, o.OutHeight, *o.OutOpacity)
}

func offset(s shift, w, h int) string {
	v := w
	if s.axisY {
		v = h
	}
	sign := ""
	if s.negative {
		sign = "-"
	}
	if s.axisY {
		return fmt.Sprintf("0/%s%d", sign, v)
	}
	return fmt.Sprintf("%s%d/0", sign, v)
}

func wipeMixer(kind string, o TransitionOptions, wipesDir string) Node {
	resource := filepath.Join(wipesDir, defaultWipeName)
	switch {
	case o.WipeName != "":
		resource = filepath.Join(wipesDir, o.WipeName)
	case o.WipePath != "":
		resource = o.WipePath
	}

	softness := Int(0)
	if o.Softness != nil {
		softness = Num(*o.Softness)
	}

	invert := 0
	if kind == TransitionWipeOut {
		invert = 1
	}

	return Option("mixer", Values(
		Str("luma"),
		List(
			KV("resource", Str(resource)),
			KV("softness", softness),
			KV("automatic", Int(1)),
			KV("fill", Int(1)),
			KV("invert", Int(invert)),
		),
	))
}

// Slide directions for text overlays.
const (
	SlideFromTop    = "top"
	SlideFromBottom = "bottom"
	SlideFromRight  = "right"
	SlideFromLeft   = "left"
)

// SlideGeometry builds the percentage geometry that slides an overlay in from
// one edge. Unknown directions slide from the left. A zero duration uses 50
// frames.
func SlideGeometry(from string, durationFrames, inOpacity, outOpacity int) string {
	if durationFrames == 0 {
		durationFrames = defaultSlideLen
	}
	start := "-100%/0%"
	switch from {
	case SlideFromTop:
		start = "0%/-100%"
	case SlideFromBottom:
		start = "0%/100%"
	case SlideFromRight:
		start = "100%/0%"
	}
	return fmt.Sprintf("0=%s:100%%x100%%:%d;%d=0%%/0%%:100%%x100%%:%d",
		start, inOpacity, durationFrames, outOpacity)
}
