// Package adjust maps labels to visual transforms and applies them to a
// displayed image.
package adjust

import (
	"fmt"
	"strconv"

	"github.com/krau/autotone/label"
)

// Filter names a CSS filter function.
type Filter string

const (
	Brightness Filter = "brightness"
	Contrast   Filter = "contrast"
	Sepia      Filter = "sepia"
	HueRotate  Filter = "hue-rotate"
)

// Spec is the transform for one label.
type Spec struct {
	Label  label.Label `json:"label"`
	Filter Filter      `json:"filter"`
	Amount float64     `json:"amount"`
	Unit   string      `json:"unit,omitempty"`
}

// CSS renders the spec as a CSS filter value, e.g. "brightness(1.3)".
func (s Spec) CSS() string {
	return fmt.Sprintf("%s(%s%s)", s.Filter, strconv.FormatFloat(s.Amount, 'f', -1, 64), s.Unit)
}

// specs is indexed by label; every label has exactly one entry.
var specs = [label.Count]Spec{
	label.Brighten:         {Label: label.Brighten, Filter: Brightness, Amount: 1.3},
	label.Darken:           {Label: label.Darken, Filter: Brightness, Amount: 0.7},
	label.IncreaseContrast: {Label: label.IncreaseContrast, Filter: Contrast, Amount: 1.5},
	label.DecreaseContrast: {Label: label.DecreaseContrast, Filter: Contrast, Amount: 0.8},
	label.Warm:             {Label: label.Warm, Filter: Sepia, Amount: 0.3},
	label.Cool:             {Label: label.Cool, Filter: HueRotate, Amount: 200, Unit: "deg"},
}

// UnknownLabelError is returned for a label outside the known set.
type UnknownLabelError struct {
	Label label.Label
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("unknown recommendation %d", int(e.Label))
}

// SpecFor returns the transform for l.
func SpecFor(l label.Label) (Spec, error) {
	if !l.Valid() {
		return Spec{}, &UnknownLabelError{Label: l}
	}
	return specs[l], nil
}

// All returns every spec in label order.
func All() []Spec {
	out := make([]Spec, len(specs))
	copy(out, specs[:])
	return out
}
