package preview

import "nightscape-preview/internal/fixture"

type NamedOption struct {
	Key  string
	Name string
}

func LightStyles() []NamedOption {
	order := []string{
		"warm",
		"amber",
		"neutral",
		"moonlight",
		"dusk",
	}

	out := make([]NamedOption, 0, len(order))
	for _, key := range order {
		if st, ok := lightStyles[key]; ok {
			out = append(out, NamedOption{Key: key, Name: st.Name})
		}
	}
	return out
}

// FixtureCatalog describes every known fixture type, used by /help.
func FixtureCatalog() []NamedOption {
	types := fixture.Types()
	out := make([]NamedOption, 0, len(types))
	for _, t := range types {
		brief := briefFor(t)
		if len(brief) == 0 {
			continue
		}
		out = append(out, NamedOption{Key: t.String(), Name: brief[0]})
	}
	return out
}
