package fhir

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode  string   `json:"mode,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

// Search entry modes.
const (
	SearchModeMatch   = "match"
	SearchModeInclude = "include"
	SearchModeOutcome = "outcome"
)

// SearchBundleParams holds pagination and link information for a search bundle.
type SearchBundleParams struct {
	BaseURL  string
	QueryStr string
	Count    int
	Offset   int
	Total    int
	// Token, when set, makes links page through the cached result snapshot
	// instead of re-running the criteria.
	Token     string
	ID        string
	Timestamp time.Time
	// Ignored names the unknown parameters dropped under lenient handling.
	Ignored []string
}

// NewSearchBundleFromPage creates a searchset Bundle from a provider page.
// Matches come first, then included resources. When the page lost entries to
// translation failures, or parameters were ignored, an OperationOutcome entry
// is appended.
func NewSearchBundleFromPage(page *search.Page, params SearchBundleParams) (*Bundle, error) {
	entries := make([]BundleEntry, 0, len(page.Entries)+1)
	for _, e := range page.Entries {
		raw, err := json.Marshal(e.Resource)
		if err != nil {
			return nil, fmt.Errorf("marshal %s/%s: %w", e.ResourceType, e.ID, err)
		}
		mode := SearchModeMatch
		if e.Mode == search.ModeInclude {
			mode = SearchModeInclude
		}
		entries = append(entries, BundleEntry{
			FullURL:  entryFullURL(params.BaseURL, e),
			Resource: raw,
			Search:   &BundleSearch{Mode: mode},
		})
	}
	var warnings []string
	if page.Partial() {
		warnings = append(warnings, fmt.Sprintf("%d matching resource(s) on this page could not be rendered and were omitted", len(page.Excluded)))
	}
	if len(params.Ignored) > 0 {
		warnings = append(warnings, "ignored unknown search parameters: "+strings.Join(params.Ignored, ", "))
	}
	if len(warnings) > 0 {
		oo := WarningOutcome(warnings[0])
		for _, w := range warnings[1:] {
			oo.Issue = append(oo.Issue, OperationOutcomeIssue{Severity: IssueSeverityWarning, Code: IssueTypeProcessing, Diagnostics: w})
		}
		raw, err := json.Marshal(oo)
		if err != nil {
			return nil, err
		}
		entries = append(entries, BundleEntry{Resource: raw, Search: &BundleSearch{Mode: SearchModeOutcome}})
	}

	total := params.Total
	b := &Bundle{
		ResourceType: "Bundle",
		ID:           params.ID,
		Type:         "searchset",
		Total:        &total,
		Link:         buildPaginationLinks(params),
		Entry:        entries,
	}
	if !params.Timestamp.IsZero() {
		ts := params.Timestamp
		b.Timestamp = &ts
	}
	return b, nil
}

// entryFullURL builds "<base>/<Type>/<id>" from the resource's own id.
func entryFullURL(baseURL string, e search.Entry) string {
	id, _ := e.Resource["id"].(string)
	if id == "" {
		id = e.ID
	}
	return fmt.Sprintf("%s/%s/%s", serverBase(baseURL), e.ResourceType, id)
}

// serverBase strips the resource type from a type-level search URL.
func serverBase(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Path == "" {
		return baseURL
	}
	for i := len(u.Path) - 1; i >= 0; i-- {
		if u.Path[i] == '/' {
			u.Path = u.Path[:i]
			return u.String()
		}
	}
	return baseURL
}

// buildPaginationLinks creates self, next, and previous links for searchset bundles.
func buildPaginationLinks(params SearchBundleParams) []BundleLink {
	links := []BundleLink{{Relation: "self", URL: pageURL(params, params.Offset)}}

	// Next link: only if there are more results
	if params.Count > 0 && params.Offset+params.Count < params.Total {
		links = append(links, BundleLink{Relation: "next", URL: pageURL(params, params.Offset+params.Count)})
	}

	// Previous link: only if not at the first page
	if params.Offset > 0 && params.Count > 0 {
		prev := params.Offset - params.Count
		if prev < 0 {
			prev = 0
		}
		links = append(links, BundleLink{Relation: "previous", URL: pageURL(params, prev)})
	}
	return links
}

func pageURL(params SearchBundleParams, offset int) string {
	count := strconv.Itoa(params.Count)
	if params.Token != "" {
		q := url.Values{}
		// Includes are resolved per page, so they travel with the token.
		if orig, err := url.ParseQuery(params.QueryStr); err == nil {
			for _, k := range []string{"_include", "_revinclude"} {
				if v, ok := orig[k]; ok {
					q[k] = v
				}
			}
		}
		q.Set("_getpages", params.Token)
		q.Set("_getpagesoffset", strconv.Itoa(offset))
		q.Set("_count", count)
		return params.BaseURL + "?" + q.Encode()
	}
	return fmt.Sprintf("%s?%s_count=%s&_offset=%d", params.BaseURL, conditionalAmpersand(params.QueryStr), count, offset)
}

// conditionalAmpersand returns the query string with a trailing & if non-empty.
func conditionalAmpersand(qs string) string {
	if qs == "" {
		return ""
	}
	return qs + "&"
}
