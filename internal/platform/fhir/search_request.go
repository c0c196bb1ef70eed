package fhir

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

// Result-control parameters that are accepted but carry no criteria.
var ignoredControls = map[string]bool{
	"_format":   true,
	"_pretty":   true,
	"_summary":  true,
	"_elements": true,
	"_total":    true,
	"tenant_id": true,
}

// SearchRequest is a FHIR search request decoded against a registry.
type SearchRequest struct {
	ResourceType string
	Params       *search.ParameterMap
	Include      *search.Include
	// Count is the requested page size; zero when absent.
	Count    int
	HasCount bool
	Offset   int
	// PageToken is the _getpages value of a link-based page request.
	PageToken string
	// Query is the canonical criteria query string used to build links.
	Query string
	// Ignored lists the unknown parameters dropped under lenient handling.
	Ignored []string
}

// ParseSearchRequest decodes query parameters (or a form-encoded _search body)
// into a SearchRequest. Unknown parameters and malformed values yield a
// *search.InvalidRequestError.
func ParseSearchRequest(reg *search.Registry, resourceType string, values url.Values) (*SearchRequest, error) {
	return parseSearchRequest(reg, resourceType, values, HandlingStrict)
}

// ParseLenientSearchRequest is ParseSearchRequest under lenient handling:
// unknown parameters are recorded in Ignored instead of failing the request.
// Malformed values of known parameters are still rejected.
func ParseLenientSearchRequest(reg *search.Registry, resourceType string, values url.Values) (*SearchRequest, error) {
	return parseSearchRequest(reg, resourceType, values, HandlingLenient)
}

func parseSearchRequest(reg *search.Registry, resourceType string, values url.Values, handling HandlingPreference) (*SearchRequest, error) {
	if !reg.HasResource(resourceType) {
		return nil, invalid("", "%s is not a searchable resource type", resourceType)
	}
	req := &SearchRequest{ResourceType: resourceType}
	builder := search.NewMapBuilder()
	criteria := url.Values{}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var includes, revIncludes []string
	for _, key := range keys {
		raws := values[key]
		switch {
		case key == "_count":
			n, err := nonNegativeInt(key, raws)
			if err != nil {
				return nil, err
			}
			req.Count, req.HasCount = n, true
			continue
		case key == "_offset" || key == "_getpagesoffset":
			n, err := nonNegativeInt(key, raws)
			if err != nil {
				return nil, err
			}
			req.Offset = n
			continue
		case key == "_getpages":
			req.PageToken = lastValue(raws)
			continue
		case key == "_include":
			includes = append(includes, raws...)
			continue
		case key == "_revinclude":
			revIncludes = append(revIncludes, raws...)
			continue
		case key == search.SortHandler:
			for _, raw := range raws {
				builder.AddParameter(search.SortHandler, ParseSort(raw))
			}
		case ignoredControls[key]:
			continue
		case strings.HasPrefix(key, "_has:"):
			for _, raw := range raws {
				h, err := parseHas(reg, key, raw)
				if err != nil {
					return nil, err
				}
				builder.AddParameter("_has", h)
			}
		default:
			if handling == HandlingLenient && !knownParam(reg, resourceType, key) {
				req.Ignored = append(req.Ignored, key)
				continue
			}
			if err := addCriterion(reg, builder, resourceType, key, raws); err != nil {
				return nil, err
			}
		}
		criteria[key] = raws
	}

	inc, err := search.ParseIncludes(reg, resourceType, includes, revIncludes)
	if err != nil {
		return nil, err
	}
	req.Params = builder.Build()
	req.Include = inc
	if len(includes) > 0 {
		criteria["_include"] = includes
	}
	if len(revIncludes) > 0 {
		criteria["_revinclude"] = revIncludes
	}
	req.Query = criteria.Encode()
	return req, nil
}

func knownParam(reg *search.Registry, resourceType, key string) bool {
	name, _ := ParseParamModifier(key)
	if i := strings.Index(name, "."); i >= 0 {
		name = name[:i]
	}
	_, ok := reg.Param(resourceType, name)
	return ok
}

func nonNegativeInt(key string, raws []string) (int, error) {
	n, err := strconv.Atoi(lastValue(raws))
	if err != nil || n < 0 {
		return 0, invalid(key, "must be a non-negative integer")
	}
	return n, nil
}

func lastValue(raws []string) string {
	if len(raws) == 0 {
		return ""
	}
	return raws[len(raws)-1]
}

// addCriterion decodes one query key. Repeated keys are ANDed; comma
// separated values within one occurrence are ORed.
func addCriterion(reg *search.Registry, b *search.MapBuilder, resourceType, key string, raws []string) error {
	name, modifier := ParseParamModifier(key)
	chain := ""
	if i := strings.Index(name, "."); i >= 0 {
		name, chain = name[:i], name[i+1:]
	}
	if i := strings.Index(string(modifier), "."); i >= 0 {
		chain = string(modifier)[i+1:]
		modifier = modifier[:i]
	}
	def, ok := reg.Param(resourceType, name)
	if !ok {
		return invalid(key, "not supported for %s", resourceType)
	}
	if modifier == ModifierMissing {
		return invalid(key, "the :missing modifier is not supported")
	}
	for _, raw := range raws {
		var (
			v   search.Value
			err error
		)
		if def.Type == search.ParamReference {
			v, err = parseReferenceValue(reg, def, key, string(modifier), chain, raw)
		} else {
			if chain != "" {
				return invalid(key, "only reference parameters can be chained")
			}
			v, err = parseValue(def, key, modifier, raw)
		}
		if err != nil {
			return err
		}
		b.AddParameter(name, v)
	}
	return nil
}

// parseValue decodes a non-reference value of def.
func parseValue(def search.ParamDef, key string, modifier SearchModifier, raw string) (search.Value, error) {
	switch def.Type {
	case search.ParamToken, search.ParamURI:
		if modifier != "" && modifier != ModifierNot {
			return nil, invalid(key, "modifier %q not supported for tokens", modifier)
		}
		parts := strings.Split(raw, ",")
		if modifier == ModifierNot && len(parts) > 1 {
			// status:not=a,b excludes both codes.
			and := make(search.TokenAnd, len(parts))
			for i, p := range parts {
				t := ParseToken(p)
				t.Not = true
				and[i] = search.TokenOr{t}
			}
			return and, nil
		}
		or := make(search.TokenOr, 0, len(parts))
		for _, p := range parts {
			t := ParseToken(p)
			t.Not = modifier == ModifierNot
			or = append(or, t)
		}
		if len(or) == 1 {
			return or[0], nil
		}
		return or, nil

	case search.ParamString:
		s := search.String{Value: raw}
		switch modifier {
		case "":
		case ModifierExact:
			s.Match = search.MatchExact
		case ModifierContains:
			s.Match = search.MatchContains
		case ModifierText:
			s.Match = search.MatchFuzzy
		default:
			return nil, invalid(key, "modifier %q not supported for strings", modifier)
		}
		return s, nil

	case search.ParamDate:
		if modifier != "" {
			return nil, invalid(key, "modifier %q not supported for dates", modifier)
		}
		if strings.Contains(raw, ",") {
			return nil, invalid(key, "multiple date values are not supported")
		}
		bound, err := ParseDateBound(raw)
		if err != nil {
			return nil, invalid(key, "%v", err)
		}
		switch bound.Prefix {
		case search.PrefixLt, search.PrefixLe, search.PrefixEb:
			return search.DateRange{Upper: bound}, nil
		}
		return search.DateRange{Lower: bound}, nil

	case search.ParamNumber, search.ParamQuantity:
		if modifier != "" {
			return nil, invalid(key, "modifier %q not supported for quantities", modifier)
		}
		q, err := ParseQuantity(raw)
		if err != nil {
			return nil, invalid(key, "%v", err)
		}
		return q, nil
	}
	return nil, invalid(key, "unsupported parameter type")
}

// parseReferenceValue decodes "Type/id", "id" or, with a chain, the chained
// property's value. A type modifier ("subject:Patient") narrows the target.
func parseReferenceValue(reg *search.Registry, def search.ParamDef, key, modifier, chain, raw string) (search.Value, error) {
	targetType := modifier
	if chain != "" {
		target := targetType
		if target == "" {
			if len(def.Targets) != 1 {
				return nil, invalid(key, "chain %q needs an explicit target type", chain)
			}
			target = def.Targets[0]
		}
		chained, ok := reg.Param(target, chain)
		if !ok || chained.Type == search.ParamReference {
			return nil, invalid(key, "%s has no chainable property %q", target, chain)
		}
		cv, err := parseValue(chained, key, "", raw)
		if err != nil {
			return nil, err
		}
		return search.Reference{ResourceType: targetType, Chain: chain, ChainValue: cv}, nil
	}

	parts := strings.Split(raw, ",")
	or := make(search.ReferenceOr, 0, len(parts))
	for _, p := range parts {
		r := ParseReference(p)
		if targetType != "" {
			if r.ResourceType != "" && r.ResourceType != targetType {
				return nil, invalid(key, "reference %q is not a %s", p, targetType)
			}
			r.ResourceType = targetType
		}
		or = append(or, r)
	}
	if len(or) == 1 {
		return or[0], nil
	}
	return or, nil
}

// parseHas decodes "_has:Type:reference:property=value".
func parseHas(reg *search.Registry, key, raw string) (search.Value, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return nil, invalid(key, "expected _has:Type:reference:property")
	}
	prop, ok := reg.Param(parts[1], parts[3])
	if !ok {
		return nil, invalid(key, "%s has no searchable property %q", parts[1], parts[3])
	}
	if prop.Type == search.ParamReference {
		return nil, invalid(key, "nested _has is not supported")
	}
	v, err := parseValue(prop, key, "", raw)
	if err != nil {
		return nil, err
	}
	return search.Has{ResourceType: parts[1], ReferenceParam: parts[2], Property: parts[3], Value: v}, nil
}
