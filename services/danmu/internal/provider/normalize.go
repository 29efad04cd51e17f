package provider

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/example/danmu-platform/services/danmu/internal/domain"
)

// Vertical positions of a comment.
const (
	PositionScroll = 0
	PositionTop    = 1
	PositionBottom = 2
)

const (
	defaultColor = "#FFFFFF"
	defaultSize  = 25
)

// RawComment is a comment as scrapers and mirrors report it: numbers may be
// strings, colors may be integers, sizes may carry a unit.
type RawComment struct {
	Time     any    `json:"time"`
	Position any    `json:"position"`
	Color    any    `json:"color"`
	Size     any    `json:"size"`
	Text     string `json:"text"`
}

// RawFromTuple reads the [time, position, color, size, text, ...] form.
func RawFromTuple(t []any) (RawComment, bool) {
	if len(t) < 5 {
		return RawComment{}, false
	}
	text, ok := t[4].(string)
	if !ok {
		if t[4] == nil {
			return RawComment{}, false
		}
		text = fmt.Sprint(t[4])
	}
	return RawComment{Time: t[0], Position: t[1], Color: t[2], Size: t[3], Text: text}, true
}

// Normalize converts r into a CommentEvent. Comments without a usable time or
// text are rejected.
func (r RawComment) Normalize() (domain.CommentEvent, bool) {
	tm, ok := toFloat(r.Time)
	if !ok || tm < 0 || r.Text == "" {
		return domain.CommentEvent{}, false
	}
	return domain.CommentEvent{
		Time:     tm,
		Position: position(r.Position),
		Color:    color(r.Color),
		Size:     size(r.Size),
		Text:     r.Text,
	}, true
}

// NormalizeAll keeps the comments that normalize, in order.
func NormalizeAll(raws []RawComment) []domain.CommentEvent {
	out := make([]domain.CommentEvent, 0, len(raws))
	for _, r := range raws {
		if ev, ok := r.Normalize(); ok {
			out = append(out, ev)
		}
	}
	return out
}

// ColorHex renders an integer RGB color as #RRGGBB using its low 24 bits.
func ColorHex(c int64) string {
	return fmt.Sprintf("#%06X", uint32(c)&0xFFFFFF)
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func position(v any) int {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "top":
			return PositionTop
		case "bottom":
			return PositionBottom
		case "", "scroll", "right":
			return PositionScroll
		}
	}
	f, ok := toFloat(v)
	if !ok {
		return PositionScroll
	}
	return int(f)
}

func color(v any) string {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "#") {
			return s
		}
		if s == "" {
			return defaultColor
		}
	}
	f, ok := toFloat(v)
	if !ok {
		return defaultColor
	}
	return ColorHex(int64(f))
}

func size(v any) int {
	if s, ok := v.(string); ok {
		v = strings.TrimSuffix(strings.TrimSpace(s), "px")
	}
	f, ok := toFloat(v)
	if !ok || f <= 0 {
		return defaultSize
	}
	return int(f)
}
