package adjust

import (
	"github.com/krau/autotone/label"
)

// Display is the display representation of an image: the transform currently
// set on it. A zero Display shows the image unmodified.
type Display struct {
	spec *Spec
}

// Filter returns the CSS filter value, or "" when none is set.
func (d *Display) Filter() string {
	if d.spec == nil {
		return ""
	}
	return d.spec.CSS()
}

// Spec returns the current transform.
func (d *Display) Spec() (Spec, bool) {
	if d.spec == nil {
		return Spec{}, false
	}
	return *d.spec, true
}

// Apply sets the transform for l on d, replacing any previous one. On error
// d is left unchanged.
func Apply(d *Display, l label.Label) (Spec, error) {
	s, err := SpecFor(l)
	if err != nil {
		return Spec{}, err
	}
	d.spec = &s
	return s, nil
}

// State is the Applicator's position in the recommend/apply cycle.
type State string

const (
	NoRecommendationYet State = "no_recommendation"
	RecommendationReady State = "recommendation_ready"
	Applied             State = "applied"
)

// PreconditionError is returned when an adjustment is requested before an
// image has been analyzed.
type PreconditionError struct{}

func (*PreconditionError) Error() string {
	return "no recommendation yet: upload and analyze an image first"
}

// Applicator guards Apply behind a successful recommendation. It is not safe
// for concurrent use.
type Applicator struct {
	state State
	label label.Label
}

func NewApplicator() *Applicator {
	return &Applicator{state: NoRecommendationYet}
}

func (a *Applicator) State() State {
	if a.state == "" {
		return NoRecommendationYet
	}
	return a.state
}

// Label returns the pending recommendation, if any.
func (a *Applicator) Label() (label.Label, bool) {
	if a.State() == NoRecommendationYet {
		return 0, false
	}
	return a.label, true
}

func (a *Applicator) Recommend(l label.Label) {
	a.label = l
	a.state = RecommendationReady
}

// Reset forgets the recommendation, e.g. when a new image replaces the old one.
func (a *Applicator) Reset() {
	a.label = 0
	a.state = NoRecommendationYet
}

// Apply sets the recommended transform on d. Without a recommendation it
// returns *PreconditionError and leaves d untouched. Applying again yields
// the same display.
func (a *Applicator) Apply(d *Display) (Spec, error) {
	if a.State() == NoRecommendationYet || d == nil {
		return Spec{}, &PreconditionError{}
	}
	s, err := Apply(d, a.label)
	if err != nil {
		return Spec{}, err
	}
	a.state = Applied
	return s, nil
}
