package catalog

import "sort"

// List is an in-code Source for scripts registered as Go values instead of
// files on disk. Ordering follows the same convention as Dir: lexical on the
// script name, which carries the 3-digit prefix.
type List struct {
	scripts []Script
}

// NewList creates a Source over a fixed set of scripts.
func NewList(scripts ...Script) *List {
	return &List{scripts: scripts}
}

func (l *List) List() ([]Script, error) {
	out := make([]Script, len(l.scripts))
	copy(out, l.scripts)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	for i := range out {
		if out[i].FileName == "" {
			out[i].FileName = out[i].Name
		}
		if out[i].OrderKey == "" && len(out[i].Name) >= 3 {
			out[i].OrderKey = out[i].Name[:3]
		}
	}
	return out, nil
}
