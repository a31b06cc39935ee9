package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"html"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/layerkit/layerkit/pkg/layer"
)

// Renderer types a map server reports.
const (
	RendererSimple      = "simple"
	RendererUniqueValue = "uniqueValue"
	RendererClassBreaks = "classBreaks"
)

// uniqueValueDelimiter joins multi-field unique value keys.
const uniqueValueDelimiter = ", "

const iconSize = 20

type legendResponse struct {
	Layers []struct {
		LayerID   int    `json:"layerId"`
		LayerName string `json:"layerName"`
		Legend    []struct {
			Label       string `json:"label"`
			URL         string `json:"url"`
			ImageData   string `json:"imageData"`
			ContentType string `json:"contentType"`
			Height      int    `json:"height"`
			Width       int    `json:"width"`
		} `json:"legend"`
	} `json:"layers"`
}

// Symbology turns service legends and renderers into legend symbols. Symbols
// seen in a legend are remembered by label so a graphic's icon matches the
// legend when possible.
type Symbology struct {
	client *Client

	mu    sync.RWMutex
	icons map[string]string
}

var _ layer.SymbologyService = (*Symbology)(nil)

// NewSymbology returns a symbology service using client.
func NewSymbology(client *Client) *Symbology {
	return &Symbology{client: client, icons: make(map[string]string)}
}

// MapServerLegend fetches the legend of sublayer index from the map server
// behind serviceURL. Feature server urls are redirected to their map server.
func (s *Symbology) MapServerLegend(ctx context.Context, serviceURL, index string) ([]layer.SymbologyItem, error) {
	base := strings.TrimRight(strings.Replace(serviceURL, "/FeatureServer", "/MapServer", 1), "/")
	id, err := strconv.Atoi(index)
	if err != nil {
		return nil, fmt.Errorf("arcgis: invalid sublayer index %q", index)
	}

	var resp legendResponse
	if err := s.client.GetJSON(ctx, base+"/legend", url.Values{"f": {"json"}}, &resp); err != nil {
		return nil, err
	}

	for _, l := range resp.Layers {
		if l.LayerID != id {
			continue
		}
		items := make([]layer.SymbologyItem, 0, len(l.Legend))
		for _, entry := range l.Legend {
			item := layer.SymbologyItem{Name: entry.Label}
			switch {
			case entry.ImageData != "":
				item.SVGCode = imageSVG(entry.ContentType, entry.ImageData, entry.Width, entry.Height)
				s.remember(entry.Label, item.SVGCode)
			case entry.URL != "":
				item.ImageURL = fmt.Sprintf("%s/%d/images/%s", base, id, entry.URL)
			}
			items = append(items, item)
		}
		return items, nil
	}
	return nil, fmt.Errorf("arcgis: sublayer %s not in legend of %s", index, base)
}

// GraphicIcon returns the symbol the renderer draws attrs with.
func (s *Symbology) GraphicIcon(attrs map[string]any, r *layer.Renderer) string {
	label := RendererLabel(attrs, r)
	s.mu.RLock()
	icon, ok := s.icons[label]
	s.mu.RUnlock()
	if ok {
		return icon
	}
	return swatchSVG(label)
}

// PlaceholderSymbol is a round badge with the first letter of name.
func (s *Symbology) PlaceholderSymbol(name, colour string) layer.SymbologyItem {
	letter := "?"
	if r, _ := utf8.DecodeRuneInString(name); r != utf8.RuneError {
		letter = string(unicode.ToUpper(r))
	}
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+
		`<circle cx="10" cy="10" r="9" fill="%s"/>`+
		`<text x="10" y="14" font-size="11" font-family="sans-serif" text-anchor="middle" fill="#ffffff">%s</text></svg>`,
		iconSize, iconSize, iconSize, iconSize, html.EscapeString(colour), html.EscapeString(letter))
	return layer.SymbologyItem{Name: name, SVGCode: svg}
}

func (s *Symbology) remember(label, svg string) {
	s.mu.Lock()
	if _, ok := s.icons[label]; !ok {
		s.icons[label] = svg
	}
	s.mu.Unlock()
}

// RendererLabel finds the legend label a renderer gives a feature. Features
// no class matches get the renderer's default label.
func RendererLabel(attrs map[string]any, r *layer.Renderer) string {
	if r == nil {
		return ""
	}
	switch r.Type {
	case RendererSimple:
		return r.Label

	case RendererUniqueValue:
		var parts []string
		for _, f := range []string{r.Field1, r.Field2, r.Field3} {
			if f == "" {
				continue
			}
			parts = append(parts, attrString(attrs[f]))
		}
		key := strings.Join(parts, uniqueValueDelimiter)
		for _, info := range r.UniqueValueInfos {
			if info.Value == key {
				return info.Label
			}
		}
		return r.DefaultLabel

	case RendererClassBreaks:
		v, ok := attrFloat(attrs[r.Field])
		if !ok {
			return r.DefaultLabel
		}
		lower := r.MinValue
		for i, brk := range r.ClassBreakInfos {
			// The first class includes its lower bound.
			if (i == 0 && v >= lower || v > lower) && v <= brk.ClassMaxValue {
				return brk.Label
			}
			lower = brk.ClassMaxValue
		}
		return r.DefaultLabel

	default:
		return r.DefaultLabel
	}
}

func attrString(v any) string {
	switch t := v.(type) {
	case nil:
		return "<Null>"
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func attrFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func imageSVG(contentType, data string, w, h int) string {
	if w == 0 {
		w = iconSize
	}
	if h == 0 {
		h = iconSize
	}
	if contentType == "" {
		contentType = "image/png"
	}
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%d" height="%d">`+
		`<image width="%d" height="%d" xlink:href="data:%s;base64,%s"/></svg>`,
		w, h, w, h, html.EscapeString(contentType), html.EscapeString(data))
}

// swatchSVG is a square whose colour is derived from label, so equal labels
// always draw the same.
func swatchSVG(label string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(label))
	sum := h.Sum32()
	colour := fmt.Sprintf("#%02x%02x%02x", byte(sum>>16), byte(sum>>8), byte(sum))
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d">`+
		`<title>%s</title><rect x="2" y="2" width="16" height="16" fill="%s" stroke="#333333"/></svg>`,
		iconSize, iconSize, html.EscapeString(label), colour)
}
