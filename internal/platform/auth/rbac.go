package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Hospital roles. Each one owns a dashboard.
const (
	RoleAdmin        = "admin"
	RoleDoctor       = "doctor"
	RoleNurse        = "nurse"
	RoleReceptionist = "receptionist"
	RolePharmacy     = "pharmacy"
	RoleLaboratory   = "laboratory"
	RoleBilling      = "billing"
	RolePatient      = "patient"
	RoleBloodBank    = "bloodbank"
)

// Roles lists every known role.
var Roles = []string{
	RoleAdmin, RoleDoctor, RoleNurse, RoleReceptionist, RolePharmacy,
	RoleLaboratory, RoleBilling, RolePatient, RoleBloodBank,
}

// StaffRoles is every role except patient.
var StaffRoles = []string{
	RoleDoctor, RoleNurse, RoleReceptionist, RolePharmacy,
	RoleLaboratory, RoleBilling, RoleBloodBank,
}

func IsRole(r string) bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// HasRole reports whether roles satisfies the allow-list. Admin always does.
func HasRole(roles []string, allowed ...string) bool {
	for _, has := range roles {
		if has == RoleAdmin {
			return true
		}
		for _, required := range allowed {
			if has == required {
				return true
			}
		}
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(RolesFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
