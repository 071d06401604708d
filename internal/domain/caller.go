package domain

// Role is the resolved role of an authenticated caller.
type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleInstructor Role = "INSTRUCTOR"
	RoleAdvisor    Role = "ADVISOR"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleInstructor || r == RoleAdvisor
}

// Caller is the capability token passed into every workflow operation.
// ScopeIDs hold offering ids for instructors and batch ids for advisors.
type Caller struct {
	UserID   string
	Role     Role
	ScopeIDs []string
}

// HasScope reports whether id is among the caller's scope ids.
func (c Caller) HasScope(id string) bool {
	for _, scope := range c.ScopeIDs {
		if scope == id {
			return true
		}
	}
	return false
}
