package domain

// CommentEvent is one timed comment.
type CommentEvent struct {
	Time     float64 `json:"time"`
	Position int     `json:"position"`
	Color    string  `json:"color"`
	Size     int     `json:"size"`
	Text     string  `json:"text"`
}

// Tuple renders the event in the [time, position, color, size, text] wire form.
func (e CommentEvent) Tuple() []any {
	return []any{e.Time, e.Position, e.Color, e.Size, e.Text}
}
