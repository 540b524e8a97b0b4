// Package label defines the fixed set of adjustment labels the classifier
// predicts and maps raw score vectors onto them.
package label

import (
	"fmt"
	"strconv"
	"strings"
)

// Label is one of the six adjustments. Its numeric value is the position of
// the label in the model's output vector.
type Label int

const (
	Brighten Label = iota
	Darken
	IncreaseContrast
	DecreaseContrast
	Warm
	Cool
)

// Count is the length of every score vector.
const Count = 6

// TextPrefix precedes the label name in the recommendation text.
const TextPrefix = "recommended adjustment: "

var names = [Count]string{
	"Brighten",
	"Darken",
	"Increase Contrast",
	"Decrease Contrast",
	"Warm",
	"Cool",
}

func All() []Label {
	return []Label{Brighten, Darken, IncreaseContrast, DecreaseContrast, Warm, Cool}
}

func Names() []string {
	out := make([]string, Count)
	copy(out, names[:])
	return out
}

// Valid reports whether l is one of the six known labels.
func (l Label) Valid() bool {
	return l >= 0 && int(l) < Count
}

func (l Label) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Label(%d)", int(l))
	}
	return names[l]
}

// Text is the human readable recommendation shown to the user.
func Text(l Label) string {
	return TextPrefix + l.String()
}

// Parse accepts a display name ("Increase Contrast"), an identifier-style
// name ("IncreaseContrast", "increase_contrast") or an index.
func Parse(s string) (Label, error) {
	key := normalize(s)
	for i, n := range names {
		if normalize(n) == key {
			return Label(i), nil
		}
	}
	if idx, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && Label(idx).Valid() {
		return Label(idx), nil
	}
	return 0, fmt.Errorf("unknown label %q", s)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

func (l Label) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("unknown label %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Label) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
