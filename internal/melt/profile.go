package melt

import "sort"

// Profile is a named melt frame preset.
type Profile struct {
	Name             string `json:"name"`
	FrameRateNum     int    `json:"frame_rate_num"`
	FrameRateDen     int    `json:"frame_rate_den"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	Progressive      bool   `json:"progressive"`
	SampleAspectNum  int    `json:"sample_aspect_num"`
	SampleAspectDen  int    `json:"sample_aspect_den"`
	DisplayAspectNum int    `json:"display_aspect_num"`
	DisplayAspectDen int    `json:"display_aspect_den"`
}

// Fps returns the integral frame rate used by the builder.
func (p Profile) Fps() int {
	if p.FrameRateDen <= 1 {
		return p.FrameRateNum
	}
	return p.FrameRateNum / p.FrameRateDen
}

// DefaultProfile is the profile a new Builder starts with.
const DefaultProfile = "hdv_720_25p"

var profiles = map[string]Profile{
	"atsc_1080p_25": {FrameRateNum: 25, FrameRateDen: 1, Width: 1920, Height: 1080, Progressive: true, SampleAspectNum: 1, SampleAspectDen: 1, DisplayAspectNum: 16, DisplayAspectDen: 9},
	"atsc_1080p_24": {FrameRateNum: 24, FrameRateDen: 1, Width: 1920, Height: 1080, Progressive: true, SampleAspectNum: 1, SampleAspectDen: 1, DisplayAspectNum: 16, DisplayAspectDen: 9},
	"atsc_720p_25":  {FrameRateNum: 25, FrameRateDen: 1, Width: 1280, Height: 720, Progressive: true, SampleAspectNum: 1, SampleAspectDen: 1, DisplayAspectNum: 16, DisplayAspectDen: 9},
	"atsc_720p_24":  {FrameRateNum: 24, FrameRateDen: 1, Width: 1280, Height: 720, Progressive: true, SampleAspectNum: 1, SampleAspectDen: 1, DisplayAspectNum: 16, DisplayAspectDen: 9},
	"hdv_1080_25p":  {FrameRateNum: 25, FrameRateDen: 1, Width: 1440, Height: 1080, Progressive: true, SampleAspectNum: 4, SampleAspectDen: 3, DisplayAspectNum: 16, DisplayAspectDen: 9},
	"hdv_720_25p":   {FrameRateNum: 25, FrameRateDen: 1, Width: 1280, Height: 720, Progressive: true, SampleAspectNum: 1, SampleAspectDen: 1, DisplayAspectNum: 16, DisplayAspectDen: 9},
	"dv_pal":        {FrameRateNum: 25, FrameRateDen: 1, Width: 720, Height: 576, Progressive: false, SampleAspectNum: 16, SampleAspectDen: 15, DisplayAspectNum: 4, DisplayAspectDen: 3},
	"dv_pal_wide":   {FrameRateNum: 25, FrameRateDen: 1, Width: 720, Height: 576, Progressive: false, SampleAspectNum: 64, SampleAspectDen: 45, DisplayAspectNum: 16, DisplayAspectDen: 9},
}

// LookupProfile returns the named profile.
func LookupProfile(name string) (Profile, bool) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, false
	}
	p.Name = name
	return p, true
}

// Profiles returns every known profile sorted by name.
func Profiles() []Profile {
	out := make([]Profile, 0, len(profiles))
	for name := range profiles {
		p, _ := LookupProfile(name)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
