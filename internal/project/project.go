// Package project decodes JSON render projects and replays them onto a
// melt.Builder.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"

	"github.com/heimdex/heimdex-render/internal/melt"
)

// Document is a complete render project. Steps are applied in order, so the
// order of options within each target is the order of the steps.
type Document struct {
	Profile string `json:"profile,omitempty"`
	Width   int    `json:"width,omitempty" validate:"omitempty,gt=0"`
	Height  int    `json:"height,omitempty" validate:"omitempty,gt=0"`
	Fps     int    `json:"fps,omitempty" validate:"omitempty,gt=0"`
	Format  string `json:"format,omitempty" validate:"omitempty,oneof=mp4 webm"`
	Steps   []Step `json:"steps" validate:"required,min=1,dive"`
}

// Step carries exactly one action.
type Step struct {
	Target          string          `json:"target,omitempty"`
	Option          *melt.Node      `json:"option,omitempty"`
	Transition      *TransitionStep `json:"transition,omitempty"`
	Watermark       *WatermarkStep  `json:"watermark,omitempty"`
	Text            *TextStep       `json:"text,omitempty"`
	BackgroundAudio *AudioStep      `json:"background_audio,omitempty"`
	DisableAudio    bool            `json:"disable_audio,omitempty"`
	DisableVideo    bool            `json:"disable_video,omitempty"`
	Output          *OutputStep     `json:"output,omitempty"`
}

type TransitionStep struct {
	Kind    string                 `json:"kind" validate:"required"`
	Frames  int                    `json:"frames" validate:"gte=0"`
	Options melt.TransitionOptions `json:"options"`
}

type WatermarkStep struct {
	Path        string    `json:"path" validate:"required"`
	AttachToAll bool      `json:"attach_to_all,omitempty"`
	Left        int       `json:"left,omitempty"`
	Top         int       `json:"top,omitempty"`
	Width       int       `json:"width,omitempty" validate:"gte=0"`
	Height      int       `json:"height,omitempty" validate:"gte=0"`
	Properties  melt.Node `json:"properties,omitempty"`
}

type TextStep struct {
	Text        string    `json:"text" validate:"required"`
	AttachToAll bool      `json:"attach_to_all,omitempty"`
	SlideFrom   string    `json:"slide_from,omitempty" validate:"omitempty,oneof=top bottom left right"`
	Duration    int       `json:"duration,omitempty" validate:"gte=0"`
	InOpacity   *int      `json:"in_opacity,omitempty" validate:"omitempty,gte=0,lte=100"`
	OutOpacity  *int      `json:"out_opacity,omitempty" validate:"omitempty,gte=0,lte=100"`
	Properties  melt.Node `json:"properties,omitempty"`
}

type AudioStep struct {
	Path       string    `json:"path" validate:"required"`
	Delay      *int      `json:"delay,omitempty" validate:"omitempty,gte=0"`
	Properties melt.Node `json:"properties,omitempty"`
}

type OutputStep struct {
	Path    string    `json:"path" validate:"required"`
	Options melt.Node `json:"options,omitempty"`
}

var (
	ErrInvalid = errors.New("invalid project")
	validate   = validator.New()
)

// Decode reads and validates a project.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks field constraints and that every step has one action.
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for i, s := range d.Steps {
		if n := s.actions(); n != 1 {
			return fmt.Errorf("%w: step %d has %d actions, want 1", ErrInvalid, i, n)
		}
	}
	return nil
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{
		s.Option != nil, s.Transition != nil, s.Watermark != nil, s.Text != nil,
		s.BackgroundAudio != nil, s.DisableAudio, s.DisableVideo, s.Output != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Apply replays the project onto b. Unknown profiles and formats are
// reported as warnings; any other error aborts.
func (d *Document) Apply(b *melt.Builder) (warnings []string, err error) {
	if d.Profile != "" {
		if err := b.SetProfile(d.Profile); err != nil {
			if !errors.Is(err, melt.ErrUnknownProfile) {
				return nil, err
			}
			warnings = append(warnings, err.Error())
		}
	}
	if d.Width > 0 && d.Height > 0 {
		b.SetOutputSize(d.Width, d.Height)
	}
	if d.Fps > 0 {
		b.SetFps(d.Fps)
	}
	if d.Format != "" {
		b.SetOutputFormat(d.Format)
	}

	for i, s := range d.Steps {
		if err := s.apply(b); err != nil {
			if errors.Is(err, melt.ErrUnknownFormat) {
				warnings = append(warnings, err.Error())
				continue
			}
			return warnings, fmt.Errorf("step %d: %w", i, err)
		}
	}
	return warnings, nil
}

func (s Step) apply(b *melt.Builder) error {
	switch {
	case s.Option != nil:
		b.AddOption(*s.Option, s.Target)
	case s.Transition != nil:
		return b.AddReadyMadeTransition(s.Transition.Kind, s.Transition.Frames, s.Transition.Options, s.Target)
	case s.Watermark != nil:
		w := s.Watermark
		b.AddWatermark(w.Path, w.AttachToAll, melt.WatermarkOptions{
			Left: w.Left, Top: w.Top, Width: w.Width, Height: w.Height, Properties: w.Properties,
		})
	case s.Text != nil:
		t := s.Text
		b.AddTextOverlay(t.Text, t.AttachToAll, melt.TextOverlayOptions{
			Properties: t.Properties, SlideFrom: t.SlideFrom, Duration: t.Duration,
			InOpacity: t.InOpacity, OutOpacity: t.OutOpacity,
		})
	case s.BackgroundAudio != nil:
		a := s.BackgroundAudio
		b.AddBackgroundAudio(a.Path, melt.BackgroundAudioOptions{Delay: a.Delay, Properties: a.Properties})
	case s.DisableAudio:
		b.DisableAudio()
	case s.DisableVideo:
		b.DisableVideo()
	case s.Output != nil:
		return b.SetOutputVideoOptions(s.Output.Path, s.Output.Options, s.Target)
	}
	return nil
}

// OutputPath returns the consumer path of target, or "".
func (d *Document) OutputPath(target string) string {
	if target == "" {
		target = melt.DefaultTarget
	}
	for _, s := range d.Steps {
		t := s.Target
		if t == "" {
			t = melt.DefaultTarget
		}
		if s.Output != nil && t == target {
			return s.Output.Path
		}
	}
	return ""
}

// Targets lists the targets named by the steps in first-use order.
func (d *Document) Targets() []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range d.Steps {
		t := s.Target
		if t == "" {
			t = melt.DefaultTarget
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
