package fhir

import (
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

// CapabilityStatement represents the FHIR CapabilityStatement (metadata).
type CapabilityStatement struct {
	ResourceType   string            `json:"resourceType"`
	Status         string            `json:"status"`
	Date           string            `json:"date"`
	Kind           string            `json:"kind"`
	FHIRVersion    string            `json:"fhirVersion"`
	Format         []string          `json:"format"`
	Implementation *CSImplementation `json:"implementation,omitempty"`
	Rest           []CSRest          `json:"rest"`
}

type CSImplementation struct {
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
}

type CSRest struct {
	Mode     string       `json:"mode"`
	Resource []CSResource `json:"resource"`
}

type CSResource struct {
	Type             string          `json:"type"`
	Interaction      []CSInteraction `json:"interaction"`
	SearchParam      []CSSearchParam `json:"searchParam,omitempty"`
	SearchInclude    []string        `json:"searchInclude,omitempty"`
	SearchRevInclude []string        `json:"searchRevInclude,omitempty"`
}

type CSInteraction struct {
	Code string `json:"code"`
}

type CSSearchParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

var paramTypeNames = map[search.ParamType]string{
	search.ParamToken:     "token",
	search.ParamReference: "reference",
	search.ParamDate:      "date",
	search.ParamString:    "string",
	search.ParamNumber:    "number",
	search.ParamQuantity:  "quantity",
	search.ParamURI:       "uri",
}

// NewCapabilityStatement describes the read and search interactions of every
// schema type, with the include paths the registry can resolve.
func NewCapabilityStatement(baseURL string, schema *Schema, reg *search.Registry) *CapabilityStatement {
	types := schema.ResourceTypes()
	resources := make([]CSResource, 0, len(types))
	for _, rt := range types {
		res := CSResource{
			Type:        rt,
			Interaction: []CSInteraction{{Code: "read"}, {Code: "search-type"}},
		}
		for _, p := range reg.Params(rt) {
			res.SearchParam = append(res.SearchParam, CSSearchParam{Name: p.Name, Type: paramTypeNames[p.Type]})
			if p.Type != search.ParamReference {
				continue
			}
			for _, target := range p.Targets {
				if _, ok := reg.Source(target); ok {
					res.SearchInclude = append(res.SearchInclude, rt+":"+p.Name+":"+target)
				}
			}
		}
		resources = append(resources, res)
	}
	// Revincludes are the includes of other types seen from the target side.
	for i := range resources {
		for _, other := range types {
			if _, ok := reg.Source(other); !ok {
				continue
			}
			for _, p := range reg.Params(other) {
				if p.Type == search.ParamReference && containsString(p.Targets, resources[i].Type) {
					resources[i].SearchRevInclude = append(resources[i].SearchRevInclude, other+":"+p.Name)
				}
			}
		}
		sort.Strings(resources[i].SearchRevInclude)
	}

	return &CapabilityStatement{
		ResourceType: "CapabilityStatement",
		Status:       "active",
		Date:         time.Now().UTC().Format("2006-01-02"),
		Kind:         "instance",
		FHIRVersion:  "4.0.1",
		Format:       []string{"json"},
		Implementation: &CSImplementation{
			Description: "FHIR search server",
			URL:         baseURL,
		},
		Rest: []CSRest{{Mode: "server", Resource: resources}},
	}
}

// CapabilityHandler returns the /metadata handler.
func CapabilityHandler(cs *CapabilityStatement) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, cs)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
