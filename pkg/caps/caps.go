package caps

// Identity is one advertised role of an entity, e.g. a client or a bot.
// Category and Type are mandatory; Lang and Name may be empty.
type Identity struct {
	Category string `json:"category"`
	Type     string `json:"type"`
	Lang     string `json:"lang,omitempty"`
	Name     string `json:"name,omitempty"`
}

// FormField is a single variable of an extended data form, holding zero or
// more values.
type FormField struct {
	Var    string   `json:"var"`
	Values []string `json:"values,omitempty"`
}

// DataForm is an extended data form attached to a capability set. A form is
// identified by the single value of its FORM_TYPE field; forms without a
// FORM_TYPE do not participate in hashing.
type DataForm struct {
	Fields []FormField `json:"fields,omitempty"`
}

// Set is a full capability description: the identities, feature URIs and
// extended data forms an entity advertises. It is the unit that gets
// canonicalized, hashed, cached and exchanged between peers.
//
// Node carries the scoped node URI the set was resolved for. It is empty on
// a freshly built local set and filled in when an entry is committed to the
// cache.
type Set struct {
	Node       string     `json:"node,omitempty"`
	Identities []Identity `json:"identities,omitempty"`
	Features   []string   `json:"features,omitempty"`
	Forms      []DataForm `json:"forms,omitempty"`
}

// Clone returns a deep copy of the set.
func (s *Set) Clone() *Set {
	if s == nil {
		return nil
	}
	out := &Set{Node: s.Node}
	if s.Identities != nil {
		out.Identities = make([]Identity, len(s.Identities))
		copy(out.Identities, s.Identities)
	}
	if s.Features != nil {
		out.Features = make([]string, len(s.Features))
		copy(out.Features, s.Features)
	}
	if s.Forms != nil {
		out.Forms = make([]DataForm, len(s.Forms))
		for i, form := range s.Forms {
			fields := make([]FormField, len(form.Fields))
			for j, field := range form.Fields {
				values := make([]string, len(field.Values))
				copy(values, field.Values)
				fields[j] = FormField{Var: field.Var, Values: values}
			}
			out.Forms[i] = DataForm{Fields: fields}
		}
	}
	return out
}

// HasFeature reports whether the set advertises the given feature URI.
func (s *Set) HasFeature(feature string) bool {
	for _, f := range s.Features {
		if f == feature {
			return true
		}
	}
	return false
}
