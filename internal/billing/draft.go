// Package billing derives and validates billing drafts from the work codes a
// technician reports when completing an order.
package billing

import (
	"fmt"
	"sort"
	"strings"
)

// Override base codes replace the regular installation work and cannot carry an activation.
var overrideBaseCodes = map[string]struct{}{
	"P1P":  {},
	"P2P":  {},
	"P3P":  {},
	"PUTD": {},
	"DU":   {},
}

// CodeDMR is the multiroom decoder addon. Its quantity is the multiroom count of the activation.
const CodeDMR = "DMR"

// MaxMultiroomUnits is the upper bound of multiroom decoders billed with one activation.
const MaxMultiroomUnits = 3

// Activation is the service activation attached to a draft.
type Activation struct {
	Type           string
	MultiroomCount int
}

// Addon is any billable code that is neither the base work nor the activation.
type Addon struct {
	Code     string
	Quantity int
}

// Draft is the canonical billing view of a completed order. It is never persisted as such;
// it is validated and then converted into settlement entries.
type Draft struct {
	BaseWork   string
	Activation *Activation
	Addons     []Addon
}

// HasAddon reports whether an addon with the given code is present.
func (d *Draft) HasAddon(code string) bool {
	for _, a := range d.Addons {
		if a.Code == code {
			return true
		}
	}
	return false
}

// Line is one billable code with its quantity.
type Line struct {
	Code     string
	Quantity int
}

// Lines flattens the draft into billable lines: base work, activation, then addons.
func (d *Draft) Lines() []Line {
	lines := make([]Line, 0, len(d.Addons)+2)
	if d.BaseWork != "" {
		lines = append(lines, Line{Code: d.BaseWork, Quantity: 1})
	}
	if d.Activation != nil {
		lines = append(lines, Line{Code: d.Activation.Type, Quantity: 1})
	}
	for _, a := range d.Addons {
		lines = append(lines, Line{Code: a.Code, Quantity: a.Quantity})
	}
	return lines
}

// Catalog classifies the work codes of a module into base, activation and addon codes.
type Catalog struct {
	Base        map[string]struct{}
	Activations map[string]struct{}
	Addons      map[string]struct{}
}

// NewCatalog builds a catalog from code lists.
func NewCatalog(base, activations, addons []string) *Catalog {
	return &Catalog{
		Base:        toSet(base),
		Activations: toSet(activations),
		Addons:      toSet(addons),
	}
}

// Codes returns every code known to the catalog, sorted.
func (c *Catalog) Codes() []string {
	codes := make([]string, 0, len(c.Base)+len(c.Activations)+len(c.Addons))
	for _, set := range []map[string]struct{}{c.Base, c.Activations, c.Addons} {
		for code := range set {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// WorkCode is a raw code reported by the technician.
type WorkCode struct {
	Code     string
	Quantity int
}

// BuildDraft maps reported work codes onto a draft. Codes are matched case-insensitively.
// Quantities below 1 are treated as 1. Repeated addon codes are merged.
func BuildDraft(codes []WorkCode, catalog *Catalog) (*Draft, error) {
	draft := &Draft{}
	addonIndex := make(map[string]int)
	multiroom := 0

	for _, wc := range codes {
		code := strings.ToUpper(strings.TrimSpace(wc.Code))
		qty := wc.Quantity
		if qty < 1 {
			qty = 1
		}

		switch {
		case contains(catalog.Base, code):
			if draft.BaseWork != "" {
				return nil, fmt.Errorf("%w: %s and %s", ErrMultipleBaseWork, draft.BaseWork, code)
			}
			draft.BaseWork = code
		case contains(catalog.Activations, code):
			if draft.Activation != nil {
				return nil, fmt.Errorf("%w: %s and %s", ErrMultipleActivations, draft.Activation.Type, code)
			}
			draft.Activation = &Activation{Type: code}
		case contains(catalog.Addons, code):
			if code == CodeDMR {
				multiroom += qty
			}
			if i, ok := addonIndex[code]; ok {
				draft.Addons[i].Quantity += qty
				continue
			}
			addonIndex[code] = len(draft.Addons)
			draft.Addons = append(draft.Addons, Addon{Code: code, Quantity: qty})
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownWorkCode, code)
		}
	}

	if draft.Activation != nil {
		draft.Activation.MultiroomCount = multiroom
	}
	return draft, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToUpper(v)] = struct{}{}
	}
	return set
}

func contains(set map[string]struct{}, code string) bool {
	_, ok := set[code]
	return ok
}
