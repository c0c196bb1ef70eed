package fhir

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// FHIRContentType is the FHIR JSON content type with charset.
const FHIRContentType = "application/fhir+json; charset=utf-8"

// FormatMiddleware rejects requests that ask for anything but JSON, through
// _format first and the Accept header second, and marks responses as FHIR JSON.
func FormatMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if format := c.QueryParam("_format"); format != "" {
				if !jsonFormat(format) {
					return c.JSON(http.StatusNotAcceptable, NotSupportedOutcome("unsupported _format "+format+"; use application/fhir+json"))
				}
			} else if accept := c.Request().Header.Get(echo.HeaderAccept); accept != "" && !acceptsJSON(accept) {
				return c.JSON(http.StatusNotAcceptable, NotSupportedOutcome("Accept does not include application/fhir+json"))
			}
			c.Response().Header().Set(echo.HeaderContentType, FHIRContentType)
			return next(c)
		}
	}
}

// jsonFormat restores a "+" lost to query decoding before matching.
func jsonFormat(raw string) bool {
	f := strings.ReplaceAll(strings.TrimSpace(strings.ToLower(raw)), "fhir json", "fhir+json")
	switch f {
	case "json", "application/json", "application/fhir+json":
		return true
	}
	return false
}

func acceptsJSON(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(part, ";", 2)[0]))
		switch mediaType {
		case "application/fhir+json", "application/json", "application/*", "*/*":
			return true
		}
	}
	return false
}
