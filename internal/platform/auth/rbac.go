package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks if the user has at least one of
// the specified roles. admin passes every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == "admin" {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequireScope returns middleware that checks the caller holds a FHIR scope
// covering resource.operation, e.g. "user/Patient.read" or "system/*.read".
func RequireScope(resource, operation string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !hasScope(c, resource, operation) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("required scope: %s.%s", resource, operation))
			}
			return next(c)
		}
	}
}

// RequireResourceScope is RequireScope for a whole FHIR group: the resource
// type is the first path segment after prefix ("/fhir/Observation/_search"
// needs Observation.<operation>). Paths without a type segment, such as the
// capability statement, are not checked.
func RequireResourceScope(prefix, operation string) echo.MiddlewareFunc {
	prefix = strings.TrimRight(prefix, "/") + "/"
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rest := strings.TrimPrefix(c.Request().URL.Path, prefix)
			resource, _, _ := strings.Cut(rest, "/")
			if rest == c.Request().URL.Path || resource == "" || !isResourceType(resource) {
				return next(c)
			}
			return RequireScope(resource, operation)(next)(c)
		}
	}
}

// isResourceType reports whether a path segment names a resource type rather
// than a system operation like "metadata" or "$export".
func isResourceType(segment string) bool {
	c := segment[0]
	return c >= 'A' && c <= 'Z'
}

func hasScope(c echo.Context, resource, operation string) bool {
	required := resource + "." + operation
	for _, scope := range ScopesFromContext(c.Request().Context()) {
		if matchScope(scope, required) {
			return true
		}
	}
	return false
}

// matchScope checks if a granted scope covers the required "Type.op". The
// launch context prefix (user/, patient/, system/) is ignored and "*" matches
// any type or operation. SMART v2 operation letters ("rs", "cruds") cover
// read when they include r or s.
func matchScope(granted, required string) bool {
	if _, rest, ok := strings.Cut(granted, "/"); ok {
		granted = rest
	}
	gRes, gOp, ok := strings.Cut(granted, ".")
	if !ok {
		return false
	}
	rRes, rOp, ok := strings.Cut(required, ".")
	if !ok {
		return false
	}

	resMatch := gRes == "*" || gRes == rRes
	opMatch := gOp == "*" || gOp == rOp
	if !opMatch && rOp == "read" && v2Ops(gOp) {
		opMatch = strings.ContainsAny(gOp, "rs")
	}
	return resMatch && opMatch
}

func v2Ops(op string) bool {
	if op == "" {
		return false
	}
	for _, r := range op {
		if !strings.ContainsRune("cruds", r) {
			return false
		}
	}
	return true
}
