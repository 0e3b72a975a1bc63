package registry

import "strings"

// CombinedTriggers joins the trigger words of the given adapters into one
// comma-separated prompt fragment. Optional words are appended only when
// includeOptional is set.
func CombinedTriggers(adapters []LoraAdapter, includeOptional bool) string {
	var words []string
	seen := make(map[string]bool)
	add := func(w string) {
		w = strings.TrimSpace(w)
		if w == "" || seen[w] {
			return
		}
		seen[w] = true
		words = append(words, w)
	}

	for _, a := range adapters {
		for _, w := range a.TriggerWords.Required {
			add(w)
		}
		if includeOptional {
			for _, w := range a.TriggerWords.Optional {
				add(w)
			}
		}
	}
	return strings.Join(words, ", ")
}
