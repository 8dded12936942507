package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleAdmin manages users, the catalog and blueprints.
	UserRoleAdmin UserRole = "admin"
	// UserRoleCoE is the Controller of Examinations, who generates papers.
	UserRoleCoE UserRole = "coe"
	// UserRoleFaculty creates and imports questions.
	UserRoleFaculty UserRole = "faculty"
)

// Permission names an action a role may perform.
type Permission string

const (
	PermManageUsers      Permission = "MANAGE_USERS"
	PermManageCourses    Permission = "MANAGE_COURSES"
	PermManageSubjects   Permission = "MANAGE_SUBJECTS"
	PermManageBlueprints Permission = "MANAGE_BLUEPRINTS"
	PermViewAnalytics    Permission = "VIEW_ANALYTICS"
	PermGeneratePapers   Permission = "GENERATE_PAPERS"
	PermViewBlueprints   Permission = "VIEW_BLUEPRINTS"
	PermExportPapers     Permission = "EXPORT_PAPERS"
	PermCreateQuestions  Permission = "CREATE_QUESTIONS"
	PermViewQuestions    Permission = "VIEW_QUESTIONS"
)

var rolePermissions = map[UserRole][]Permission{
	UserRoleAdmin: {
		PermManageUsers, PermManageCourses, PermManageSubjects,
		PermManageBlueprints, PermViewAnalytics,
		// Admins can do everything the other roles can.
		PermGeneratePapers, PermViewBlueprints, PermExportPapers,
		PermCreateQuestions, PermViewQuestions,
	},
	UserRoleCoE: {
		PermGeneratePapers, PermViewBlueprints, PermExportPapers, PermViewAnalytics,
	},
	UserRoleFaculty: {
		PermCreateQuestions, PermViewQuestions, PermViewBlueprints,
	},
}

// IsValidRole reports whether r is a known role.
func IsValidRole(r UserRole) bool {
	_, ok := rolePermissions[r]
	return ok
}

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Can reports whether the user's role grants p.
func (u *User) Can(p Permission) bool {
	for _, have := range rolePermissions[u.Role] {
		if have == p {
			return true
		}
	}
	return false
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Course is the top of the catalog hierarchy.
type Course struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code" validate:"required,max=32"`
	Name      string    `json:"name" validate:"required,max=200"`
	CreatedAt time.Time `json:"created_at"`
}

// Subject belongs to a course.
type Subject struct {
	ID       int64  `json:"id"`
	CourseID int64  `json:"course_id"`
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=200"`
}

// Unit belongs to a subject; questions are filed under units.
type Unit struct {
	ID        int64  `json:"id"`
	SubjectID int64  `json:"subject_id"`
	Name      string `json:"name" validate:"required,max=200"`
}

// ExamType names a kind of examination (e.g. "Mid Semester").
type ExamType struct {
	ID   int64  `json:"id"`
	Name string `json:"name" validate:"required,max=100"`
}

// ServeConfig holds runtime server parameters set via CLI flags.
type ServeConfig struct {
	BasePath      string // URL prefix for sub-path deployments
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	SessionTTL    time.Duration
	MaxUploadSize int64
	BatchSize     int
	SuggestBloom  bool // Ask the LLM for a Bloom level on rows without one

	SimilarityThreshold float64
	ScreenWorkers       int
	JobRetention        time.Duration // How long finished import jobs stay queryable
}
