package melt

import (
	"context"
	"encoding/xml"
)

type mltDocument struct {
	Producers []struct {
		Properties []struct {
			Name  string `xml:"name,attr"`
			Value string `xml:",chardata"`
		} `xml:"property"`
	} `xml:"producer"`
}

// ClipProperties asks melt to describe a media file and returns the
// properties of the first producer. Failures yield an empty map.
func (b *Builder) ClipProperties(ctx context.Context, path string) map[string]string {
	cmd := b.cfg.MeltPath + ` "` + path + `" -consumer xml`
	out, err := b.shell(ctx, cmd)
	if err != nil && len(out) == 0 {
		b.logger.Warn("clip probe failed", "path", path, "error", err)
		return map[string]string{}
	}
	return parseClipProperties(out)
}

func parseClipProperties(data []byte) map[string]string {
	props := make(map[string]string)
	var doc mltDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return props
	}
	if len(doc.Producers) == 0 {
		return props
	}
	for _, p := range doc.Producers[0].Properties {
		props[p.Name] = p.Value
	}
	return props
}
