package fhir

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/onco/onco/pkg/pagination"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id,omitempty"`
	Type         string            `json:"type"`
	Total        *int              `json:"total,omitempty"`
	Link         []pagination.Link `json:"link,omitempty"`
	Entry        []BundleEntry     `json:"entry,omitempty"`
	Timestamp    *time.Time        `json:"timestamp,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// Resource is implemented by anything that can sit in a Bundle entry.
type Resource interface {
	ResourceRef() (resourceType, id string)
}

// NewSearchBundle creates a searchset Bundle. Links carry the search
// filters and page window from p.
func NewSearchBundle(resources []Resource, total int, basePath string, filters url.Values, p pagination.Params) (*Bundle, error) {
	now := time.Now().UTC()
	entries := make([]BundleEntry, 0, len(resources))
	for _, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		rt, id := r.ResourceRef()
		entries = append(entries, BundleEntry{
			FullURL:  FormatReference(rt, id),
			Resource: raw,
			Search:   &BundleSearch{Mode: "match"},
		})
	}

	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &total,
		Timestamp:    &now,
		Link:         p.Links(basePath, filters, total),
		Entry:        entries,
	}, nil
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return resourceType + "/" + id
}
