package auth

import (
	"net/http"

	"github.com/dkozyrev/codeshop/internal/models"
)

type Resource string

const (
	ResourceCatalog        Resource = "catalog"
	ResourceOrders         Resource = "orders"
	ResourceCodes          Resource = "codes"
	ResourceCreditRequests Resource = "credit_requests"
	ResourceUsers          Resource = "users"
)

type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionReview Action = "review"
	ActionManage Action = "manage"
)

// capability is one (resource, action) pair a role is allowed to perform.
type capability struct {
	resource Resource
	action   Action
}

// Every permission check in the service goes through this table; handlers
// hold no role logic of their own.
var grants = map[models.Role][]capability{
	models.RoleCustomer: {
		{ResourceCatalog, ActionRead},
		{ResourceOrders, ActionRead},
		{ResourceOrders, ActionWrite},
		{ResourceCreditRequests, ActionRead},
		{ResourceCreditRequests, ActionWrite},
	},
	models.RoleAdmin: {
		{ResourceCatalog, ActionRead},
		{ResourceCatalog, ActionManage},
		{ResourceOrders, ActionRead},
		{ResourceOrders, ActionWrite},
		{ResourceCodes, ActionRead},
		{ResourceCodes, ActionManage},
		{ResourceCreditRequests, ActionRead},
		{ResourceCreditRequests, ActionWrite},
		{ResourceCreditRequests, ActionReview},
		{ResourceUsers, ActionRead},
	},
	models.RoleSuperAdmin: {
		{ResourceCatalog, ActionRead},
		{ResourceCatalog, ActionManage},
		{ResourceOrders, ActionRead},
		{ResourceOrders, ActionWrite},
		{ResourceCodes, ActionRead},
		{ResourceCodes, ActionManage},
		{ResourceCreditRequests, ActionRead},
		{ResourceCreditRequests, ActionWrite},
		{ResourceCreditRequests, ActionReview},
		{ResourceUsers, ActionRead},
		{ResourceUsers, ActionManage},
	},
}

// Allow reports whether role may perform action on resource.
func Allow(role models.Role, resource Resource, action Action) bool {
	for _, cap := range grants[role] {
		if cap.resource == resource && cap.action == action {
			return true
		}
	}
	return false
}

// Require wraps a handler with a policy check. It assumes Middleware already
// put the role on the context.
func Require(resource Resource, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFrom(r.Context())
			if !ok || !Allow(role, resource, action) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
