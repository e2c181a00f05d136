package r4

import (
	"encoding/json"
)

// Bundle is a searchset bundle. Entry resources are kept raw so a bundle can
// carry mixed resource types (e.g. _include/_revinclude results).
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// BundleLink is a paging link.
type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// BundleEntry is one entry of a bundle.
type BundleEntry struct {
	FullURL  string             `json:"fullUrl,omitempty"`
	Resource json.RawMessage    `json:"resource,omitempty"`
	Search   *BundleEntrySearch `json:"search,omitempty"`
}

// BundleEntrySearch carries the search mode of an entry.
type BundleEntrySearch struct {
	Mode string `json:"mode,omitempty"` // match | include | outcome
}

type resourceHeader struct {
	ResourceType string `json:"resourceType"`
}

// ResourceType peeks at the entry's resource type without decoding the resource.
func (e BundleEntry) ResourceType() string {
	if len(e.Resource) == 0 {
		return ""
	}
	var h resourceHeader
	if err := json.Unmarshal(e.Resource, &h); err != nil {
		return ""
	}
	return h.ResourceType
}

// Resources decodes every entry whose resourceType equals resourceType.
// Entries of other types, and entries that fail to decode, are skipped.
func Resources[T any](b *Bundle, resourceType string) []T {
	if b == nil {
		return nil
	}
	out := make([]T, 0, len(b.Entry))
	for _, e := range b.Entry {
		if e.ResourceType() != resourceType {
			continue
		}
		var r T
		if err := json.Unmarshal(e.Resource, &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

// NewSearchset builds a searchset bundle from already encoded resources.
func NewSearchset(resources ...json.RawMessage) *Bundle {
	b := &Bundle{ResourceType: TypeBundle, Type: "searchset"}
	total := len(resources)
	b.Total = &total
	for _, r := range resources {
		b.Entry = append(b.Entry, BundleEntry{Resource: r, Search: &BundleEntrySearch{Mode: "match"}})
	}
	return b
}
