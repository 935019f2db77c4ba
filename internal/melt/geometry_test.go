package melt

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func shiftGeometryOf(t *testing.T, nodes []Node) string {
	t.Helper()
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(nodes))
	}
	mixer, ok := nodes[1].Get("mixer")
	if !ok {
		t.Fatal("second node has no mixer")
	}
	entries := mixer.Entries()
	geometry, ok := entries[len(entries)-1].Value.Get("composite.geometry")
	if !ok {
		t.Fatal("mixer has no composite.geometry")
	}
	return geometry.Text()
}

func TestTransitionNodes_Fade(t *testing.T) {
	nodes, err := TransitionNodes(TransitionFade, 10, TransitionOptions{Width: 1280, Height: 720}, "")
	if err != nil {
		t.Fatalf("TransitionNodes failed: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(nodes))
	}
	if got := Serialize(nodes[0], false, false); got != "mix=10" {
		t.Errorf("first node = %q, want mix=10", got)
	}
	if got := Serialize(nodes[1], false, false); got != `mixer="luma"` {
		t.Errorf("second node = %q, want luma mixer", got)
	}
	for _, n := range nodes {
		if strings.Contains(n.String(), "geometry") {
			t.Errorf("fade must not carry geometry: %s", n)
		}
	}
}

func TestTransitionNodes_ShiftGeometry(t *testing.T) {
	opts := TransitionOptions{Width: 1280, Height: 720}
	tests := []struct {
		kind     string
		want     string
		outgoing bool
	}{
		{TransitionShiftRightIn, "0=1280/0:1280x720:100;25=0/0:1280x720:100", false},
		{TransitionShiftLeftIn, "0=-1280/0:1280x720:100;25=0/0:1280x720:100", false},
		{TransitionShiftTopIn, "0=0/-720:1280x720:100;25=0/0:1280x720:100", false},
		{TransitionShiftBottomIn, "0=0/720:1280x720:100;25=0/0:1280x720:100", false},
		{TransitionShiftRightOut, "0=0/0:1280x720:100;25=1280/0:1280x720:100", true},
		{TransitionShiftLeftOut, "0=0/0:1280x720:100;25=-1280/0:1280x720:100", true},
		{TransitionShiftTopOut, "0=0/0:1280x720:100;25=0/-720:1280x720:100", true},
		{TransitionShiftBottomOut, "0=0/0:1280x720:100;25=0/720:1280x720:100", true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			nodes, err := TransitionNodes(tt.kind, 25, opts, "")
			if err != nil {
				t.Fatalf("TransitionNodes failed: %v", err)
			}
			if got := shiftGeometryOf(t, nodes); got != tt.want {
				t.Errorf("geometry = %q, want %q", got, tt.want)
			}
			mixer, _ := nodes[1].Get("mixer")
			hasTracks := strings.Contains(Serialize(mixer, false, false), "a_track=1 b_track=0")
			if hasTracks != tt.outgoing {
				t.Errorf("a_track/b_track present = %v, want %v", hasTracks, tt.outgoing)
			}
		})
	}
}

func TestTransitionNodes_ShiftPairsAreReverses(t *testing.T) {
	pairs := [][2]string{
		{TransitionShiftRightIn, TransitionShiftRightOut},
		{TransitionShiftLeftIn, TransitionShiftLeftOut},
		{TransitionShiftTopIn, TransitionShiftTopOut},
		{TransitionShiftBottomIn, TransitionShiftBottomOut},
	}
	opts := TransitionOptions{Width: 640, Height: 360, InOpacity: Opacity(40), OutOpacity: Opacity(80)}

	endpoint := func(keyframe string) string {
		_, rest, _ := strings.Cut(keyframe, "=")
		pos, _, _ := strings.Cut(rest, ":")
		return pos
	}

	for _, pair := range pairs {
		in, err := TransitionNodes(pair[0], 12, opts, "")
		if err != nil {
			t.Fatalf("%s: %v", pair[0], err)
		}
		out, err := TransitionNodes(pair[1], 12, opts, "")
		if err != nil {
			t.Fatalf("%s: %v", pair[1], err)
		}
		inFrames := strings.Split(shiftGeometryOf(t, in), ";")
		outFrames := strings.Split(shiftGeometryOf(t, out), ";")
		if endpoint(inFrames[0]) != endpoint(outFrames[1]) {
			t.Errorf("%s start %q != %s end %q", pair[0], endpoint(inFrames[0]), pair[1], endpoint(outFrames[1]))
		}
	}
}

func TestTransitionNodes_Wipe(t *testing.T) {
	wipes := filepath.Join("assets", "wipes")
	tests := []struct {
		name string
		kind string
		opts TransitionOptions
		want string
	}{
		{
			name: "default resource",
			kind: TransitionWipeIn,
			want: `mixer="luma" resource="` + filepath.Join(wipes, "linear_x.pgm") + `" softness=0 automatic=1 fill=1 invert=0`,
		},
		{
			name: "named wipe out",
			kind: TransitionWipeOut,
			opts: TransitionOptions{WipeName: "clock.pgm"},
			want: `mixer="luma" resource="` + filepath.Join(wipes, "clock.pgm") + `" softness=0 automatic=1 fill=1 invert=1`,
		},
		{
			name: "explicit path and softness",
			kind: TransitionWipeIn,
			opts: TransitionOptions{WipePath: "/w/radial.pgm", Softness: func() *float64 { v := 0.25; return &v }()},
			want: `mixer="luma" resource="/w/radial.pgm" softness=0.25 automatic=1 fill=1 invert=0`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := TransitionNodes(tt.kind, 30, tt.opts, wipes)
			if err != nil {
				t.Fatalf("TransitionNodes failed: %v", err)
			}
			got := Serialize(nodes[1], false, false)
			want := strings.Replace(tt.want, `mixer="luma"`, `-mixer "luma"`, 1)
			if got != want {
				t.Errorf("wipe = %q, want %q", got, want)
			}
		})
	}
}

func TestTransitionNodes_Unknown(t *testing.T) {
	nodes, err := TransitionNodes("spin", 10, TransitionOptions{}, "")
	if !errors.Is(err, ErrUnsupportedTransition) {
		t.Fatalf("err = %v, want ErrUnsupportedTransition", err)
	}
	if nodes != nil {
		t.Errorf("nodes = %v, want nil", nodes)
	}
}

func TestSlideGeometry(t *testing.T) {
	tests := []struct {
		from     string
		duration int
		want     string
	}{
		{SlideFromTop, 25, "0=0%/-100%:100%x100%:100;25=0%/0%:100%x100%:100"},
		{SlideFromBottom, 25, "0=0%/100%:100%x100%:100;25=0%/0%:100%x100%:100"},
		{SlideFromRight, 0, "0=100%/0%:100%x100%:100;50=0%/0%:100%x100%:100"},
		{SlideFromLeft, 10, "0=-100%/0%:100%x100%:100;10=0%/0%:100%x100%:100"},
		{"diagonal", 10, "0=-100%/0%:100%x100%:100;10=0%/0%:100%x100%:100"},
	}
	for _, tt := range tests {
		if got := SlideGeometry(tt.from, tt.duration, 100, 100); got != tt.want {
			t.Errorf("SlideGeometry(%q, %d) = %q, want %q", tt.from, tt.duration, got, tt.want)
		}
	}
}
