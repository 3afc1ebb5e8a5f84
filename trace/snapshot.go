package trace

import (
	"encoding/json"
	"fmt"
)

const maxSummaryLen = 512

type summary struct {
	Type    string `json:"type"`
	Summary string `json:"summary"`
}

// snapshot serializes v best-effort. Values that cannot be marshalled are
// replaced by a {type, summary} object; snapshot never fails or panics.
func snapshot(v any) (raw json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			raw = summarize(v, fmt.Sprintf("marshal panic: %v", r))
		}
	}()

	if err, ok := v.(error); ok && err != nil {
		return summarize(v, err.Error())
	}

	b, err := json.Marshal(v)
	if err != nil {
		return summarize(v, "")
	}

	return b
}

func summarize(v any, text string) json.RawMessage {
	if text == "" {
		text = safeSprint(v)
	}
	if len(text) > maxSummaryLen {
		text = text[:maxSummaryLen] + "..."
	}
	b, _ := json.Marshal(summary{Type: fmt.Sprintf("%T", v), Summary: text})
	return b
}

func safeSprint(v any) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("<unprintable %T>", v)
		}
	}()
	return fmt.Sprintf("%v", v)
}
