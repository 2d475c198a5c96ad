package authz

import "fmt"

// Permission identifies one authorized capability.
type Permission string

const (
	// PermSelfModify lets a user edit or disable their own account.
	PermSelfModify Permission = "self-modify"
	// PermCreateBooks lets a user add books to the catalog.
	PermCreateBooks Permission = "create-books"
	// PermModifyBooks lets a user update or disable books.
	PermModifyBooks Permission = "modify-books"
	// PermModifyUsers lets a user change other accounts, including their
	// permissions and role.
	PermModifyUsers Permission = "modify-users"
	// PermDisableUsers lets a user soft-delete other accounts.
	PermDisableUsers Permission = "disable-users"
	// PermDisableBooks lets a user soft-delete books.
	PermDisableBooks Permission = "disable-books"
	// PermViewHistory lets a user read a book's reservation history.
	// It belongs to no role; it is only grantable through an explicit
	// permission list.
	PermViewHistory Permission = "view-history"
)

// Role is a named, fixed bundle of permission tokens assigned wholesale.
type Role string

const (
	RoleStandard      Role = "standard"
	RoleEditor        Role = "editor"
	RoleAdministrator Role = "administrator"
)

// roleTable maps each role to its fixed permission bundle. Built once at
// init; never mutated afterwards.
var roleTable = map[Role][]Permission{
	RoleStandard: {PermSelfModify},
	RoleEditor:   {PermSelfModify, PermCreateBooks, PermModifyBooks},
	RoleAdministrator: {
		PermSelfModify,
		PermCreateBooks,
		PermModifyBooks,
		PermModifyUsers,
		PermDisableUsers,
		PermDisableBooks,
	},
}

// RolePermissions returns the permission tokens for the named role as a
// fresh string slice, or false if the role does not exist.
func RolePermissions(role string) ([]string, bool) {
	perms, ok := roleTable[Role(role)]
	if !ok {
		return nil, false
	}
	tokens := make([]string, len(perms))
	for i, p := range perms {
		tokens[i] = string(p)
	}
	return tokens, true
}

// Set holds a caller's permissions for membership tests. Tokens that do not
// correspond to any enumerated Permission are preserved but never match.
type Set map[Permission]struct{}

// NewSet builds a Set from the stored token list.
func NewSet(tokens []string) Set {
	set := make(Set, len(tokens))
	for _, token := range tokens {
		set[Permission(token)] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the permission.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Decision is the typed outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow returns a permitting decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a refusing decision carrying the reason.
func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Authorize evaluates whether the caller's permission tokens include the
// required permission.
func Authorize(callerPermissions []string, required Permission) Decision {
	if NewSet(callerPermissions).Has(required) {
		return Allow()
	}
	return Deny(fmt.Sprintf("se requiere el permiso %s", required))
}
