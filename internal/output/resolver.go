// Package output decides how a finished job's result is delivered.
package output

// Kind selects a delivery mode.
type Kind int

const (
	// Inline returns the output value as the response body.
	Inline Kind = iota
	// Stream sends the bytes of a file.
	Stream
	// Redirect points the caller at another location.
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Stream:
		return "stream"
	case Redirect:
		return "redirect"
	default:
		return "inline"
	}
}

// Resolution is the outcome of Resolve. Only the field matching Kind is set.
type Resolution struct {
	Kind  Kind
	File  string
	URL   string
	Value interface{}
}

// Resolve applies the precedence file > path > inline to a job output.
// A missing output resolves to an empty inline object.
func Resolve(out interface{}) Resolution {
	if out == nil {
		return Resolution{Kind: Inline, Value: map[string]interface{}{}}
	}
	if m, ok := out.(map[string]interface{}); ok {
		if file, ok := m["file"].(string); ok && file != "" {
			return Resolution{Kind: Stream, File: file}
		}
		if path, ok := m["path"].(string); ok && path != "" {
			return Resolution{Kind: Redirect, URL: path}
		}
	}
	return Resolution{Kind: Inline, Value: out}
}
