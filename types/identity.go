package types

import "time"

// Role classifies an identity and selects the collection it lives in.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ValidRole reports whether r is one of the three known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// AdminRoleType refines the admin role into a permission profile.
type AdminRoleType string

const (
	AdminSuper    AdminRoleType = "super_admin"
	AdminAcademic AdminRoleType = "academic_admin"
	AdminSupport  AdminRoleType = "support_admin"
	AdminCustom   AdminRoleType = "custom"
)

// ValidAdminRoleType reports whether t is a known admin role type.
func ValidAdminRoleType(t AdminRoleType) bool {
	switch t {
	case AdminSuper, AdminAcademic, AdminSupport, AdminCustom:
		return true
	}
	return false
}

// Identity is an account record in one of the three role-scoped collections.
type Identity struct {
	// ID is the unique identifier of the account, assigned at creation.
	ID string `json:"id" db:"id"`

	// Email is the login address, stored lowercase and unique per collection.
	Email string `json:"email" db:"email"`

	// FirstName and LastName are required display fields.
	FirstName string `json:"firstName" db:"first_name"`
	LastName  string `json:"lastName" db:"last_name"`

	// Role is fixed by the collection the record lives in.
	Role Role `json:"role" db:"-"`

	// PasswordHash stores the bcrypt hash of the account password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// RoleType selects the admin permission profile. Admin accounts only.
	RoleType AdminRoleType `json:"roleType,omitempty" db:"role_type"`

	// Permissions holds the admin's granted permission strings in
	// canonical form. Admin accounts only.
	Permissions []string `json:"permissions,omitempty" db:"permissions"`

	// StudentNumber is the sequentially assigned student identifier.
	StudentNumber string `json:"studentNumber,omitempty" db:"student_number"`

	// EmployeeNumber is the sequentially assigned staff identifier.
	EmployeeNumber string `json:"employeeNumber,omitempty" db:"employee_number"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// ResetToken authorizes a single password reset for the referenced owner.
// Only the SHA-256 hash of the emailed secret is ever stored.
type ResetToken struct {
	ID         string    `json:"id" db:"id"`
	OwnerID    string    `json:"ownerId" db:"owner_id"`
	OwnerRole  Role      `json:"ownerRole" db:"owner_role"`
	SecretHash string    `json:"-" db:"secret_hash"`
	Purpose    string    `json:"purpose" db:"purpose"`
	ExpiresAt  time.Time `json:"expiresAt" db:"expires_at"`
	Used       bool      `json:"used" db:"used"`
	IPAddress  string    `json:"-" db:"ip_address"`
	UserAgent  string    `json:"-" db:"user_agent"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// PurposePasswordReset is the only reset-token purpose currently issued.
const PurposePasswordReset = "password-reset"
