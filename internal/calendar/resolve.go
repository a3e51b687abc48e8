package calendar

import (
	"strings"

	"golang.org/x/text/cases"
)

// Kind is what a calendar name resolves to.
type Kind int

const (
	KindStandard Kind = iota
	KindNoLeap
	KindDay360
	KindProlepticGregorian
	KindJulian
	KindUnknown

	numKinds
)

var kindNames = [numKinds]string{"standard", "noleap", "360_day", "proleptic_gregorian", "julian", "unknown"}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "unknown"
	}
	return kindNames[k]
}

// Implemented reports whether conversions honor the calendar rather than
// falling back to the standard one.
func (k Kind) Implemented() bool {
	return k == KindStandard || k == KindNoLeap || k == KindDay360
}

// Name is a recognized calendar name.
type Name struct {
	Name string `json:"name"`
	Kind Kind   `json:"-"`
}

// names are matched as prefixes of the folded input, so "noleap_v2" is noleap.
var names = []Name{
	{"standard", KindStandard},
	{"gregorian", KindStandard},
	{"365_day", KindNoLeap},
	{"noleap", KindNoLeap},
	{"360_day", KindDay360},
	{"proleptic_gregorian", KindProlepticGregorian},
	{"julian", KindJulian},
}

// Names lists the recognized calendar names.
func Names() []Name {
	return append([]Name(nil), names...)
}

// Resolve maps a calendar name to its Kind. The empty name is the standard
// calendar. Matching ignores case.
func Resolve(name string) Kind {
	if name == "" {
		return KindStandard
	}
	// A Caser holds state, so each call gets its own.
	folded := cases.Fold().String(name)
	for _, n := range names {
		if strings.HasPrefix(folded, n.Name) {
			return n.Kind
		}
	}
	return KindUnknown
}
