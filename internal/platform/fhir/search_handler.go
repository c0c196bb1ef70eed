package fhir

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

// Searcher is implemented by each domain service that serves type-level search.
type Searcher interface {
	Search(ctx context.Context, req *SearchRequest) (search.Provider, error)
	Resume(ctx context.Context, token string, include *search.Include) (search.Provider, error)
}

// SearchEndpoint turns FHIR search requests into searchset Bundles.
type SearchEndpoint struct {
	registry     *search.Registry
	baseURL      string
	defaultCount int
	snapshots    bool
	logger       zerolog.Logger
}

// SearchEndpointConfig configures a SearchEndpoint.
type SearchEndpointConfig struct {
	// BaseURL is the public FHIR base; empty derives it from the request.
	BaseURL      string
	DefaultCount int
	// Snapshots enables _getpages links. Only set it when the query has an
	// id cache.
	Snapshots bool
}

// NewSearchEndpoint creates a SearchEndpoint.
func NewSearchEndpoint(registry *search.Registry, cfg SearchEndpointConfig, logger zerolog.Logger) *SearchEndpoint {
	if cfg.DefaultCount <= 0 {
		cfg.DefaultCount = 20
	}
	return &SearchEndpoint{
		registry:     registry,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		defaultCount: cfg.DefaultCount,
		snapshots:    cfg.Snapshots,
		logger:       logger,
	}
}

// Handler returns the GET /<Type> and POST /<Type>/_search handler.
func (e *SearchEndpoint) Handler(resourceType string, s Searcher) echo.HandlerFunc {
	return func(c echo.Context) error {
		values, err := searchValues(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, NewOperationOutcome(IssueSeverityError, IssueTypeInvalid, "malformed search body"))
		}
		parseRequest := ParseSearchRequest
		if ParsePreferHandling(c.Request().Header.Get("Prefer")) == HandlingLenient {
			parseRequest = ParseLenientSearchRequest
		}
		req, err := parseRequest(e.registry, resourceType, values)
		if err != nil {
			return e.fail(c, resourceType, err)
		}

		ctx := c.Request().Context()
		var p search.Provider
		if req.PageToken != "" {
			p, err = s.Resume(ctx, req.PageToken, req.Include)
		} else {
			p, err = s.Search(ctx, req)
		}
		if err != nil {
			return e.fail(c, resourceType, err)
		}

		count := e.defaultCount
		if req.HasCount {
			count = req.Count
		} else if n, ok := p.PreferredPageSize(); ok {
			count = n
		}
		total, err := p.Count(ctx)
		if err != nil {
			return e.fail(c, resourceType, err)
		}
		page, err := p.Page(ctx, req.Offset, count)
		if err != nil {
			return e.fail(c, resourceType, err)
		}

		params := SearchBundleParams{
			BaseURL:   e.base(c) + "/" + resourceType,
			QueryStr:  req.Query,
			Count:     page.Limit,
			Offset:    req.Offset,
			Total:     total,
			ID:        p.Identity(),
			Timestamp: p.Published(),
			Ignored:   req.Ignored,
		}
		if e.snapshots {
			params.Token = p.Identity()
		}
		bundle, err := NewSearchBundleFromPage(page, params)
		if err != nil {
			return e.fail(c, resourceType, err)
		}
		e.logger.Debug().
			Str("resource_type", resourceType).
			Strs("params", req.Params.Handlers()).
			Int("total", total).
			Int("returned", len(page.Matches())).
			Msg("search completed")
		return c.JSON(http.StatusOK, bundle)
	}
}

func (e *SearchEndpoint) fail(c echo.Context, resourceType string, err error) error {
	status, oo := SearchErrorOutcome(err)
	if status >= http.StatusInternalServerError {
		e.logger.Error().Err(err).
			Str("resource_type", resourceType).
			Str("query", c.Request().URL.RawQuery).
			Msg("search failed")
	}
	return c.JSON(status, oo)
}

func (e *SearchEndpoint) base(c echo.Context) string {
	if e.baseURL != "" {
		return e.baseURL
	}
	return c.Scheme() + "://" + c.Request().Host + "/fhir"
}

// searchValues merges query parameters with a form-encoded _search body.
func searchValues(c echo.Context) (url.Values, error) {
	values := url.Values{}
	for k, v := range c.QueryParams() {
		values[k] = append(values[k], v...)
	}
	if c.Request().Method != http.MethodPost {
		return values, nil
	}
	form, err := c.FormParams()
	if err != nil {
		return nil, err
	}
	for k, v := range form {
		if _, inQuery := c.QueryParams()[k]; inQuery {
			continue
		}
		values[k] = append(values[k], v...)
	}
	return values, nil
}
