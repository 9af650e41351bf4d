package rbac

import "github.com/rental-marketplace/backend/internal/models"

// Permission constants
const (
	PermListProperty    = "list_property"
	PermReviewRequests  = "review_requests"
	PermRequestRental   = "request_rental"
	PermViewApproved    = "view_approved"
	PermConfirmRental   = "confirm_rental"
	PermSubmitDeposit   = "submit_deposit"
	PermManageCustody   = "manage_custody"
	PermRaiseDispute    = "raise_dispute"
	PermViewEscrowStats = "view_escrow_stats"
)

// RolePermissions defines what each role can do. Ownership of the specific
// record is checked separately by the services.
var RolePermissions = map[string][]string{
	models.RoleLandlord: {
		PermListProperty, PermReviewRequests, PermConfirmRental,
		PermManageCustody, PermRaiseDispute, PermViewEscrowStats,
	},
	models.RoleTenant: {
		PermRequestRental, PermViewApproved, PermConfirmRental,
		PermSubmitDeposit, PermRaiseDispute, PermViewEscrowStats,
		// Tenant CANNOT: PermListProperty, PermReviewRequests, PermManageCustody
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}
