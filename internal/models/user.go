package models

// Role is the authenticated actor's role
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// IsReviewer reports whether the role may review applications
func (r Role) IsReviewer() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// User is the profile returned by the backend on login
type User struct {
	ID           ID     `json:"id,omitempty"`
	Username     string `json:"username"`
	Name         string `json:"name,omitempty"`
	Role         Role   `json:"role"`
	RoleName     string `json:"roleName,omitempty"`
	Avatar       string `json:"avatar,omitempty"`
	StudentID    string `json:"studentId,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	FacultyID    ID     `json:"facultyId,omitempty"`
	DepartmentID ID     `json:"departmentId,omitempty"`
	MajorID      ID     `json:"majorId,omitempty"`
	LastLogin    string `json:"lastLogin,omitempty"`
}

// DisplayName returns the role-specific display name, falling back to username
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Credentials are the login inputs
type Credentials struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	Captcha   string `json:"captcha,omitempty"`
	CaptchaID string `json:"captcha_id,omitempty"`
}

// Validate checks the credentials
func (c Credentials) Validate() error {
	return validateStruct(c)
}

// Registration is the payload of a register call
type Registration struct {
	Username     string `json:"username" validate:"required,min=3"`
	Password     string `json:"password" validate:"required,min=6"`
	Name         string `json:"name" validate:"required"`
	Role         Role   `json:"role" validate:"omitempty,oneof=student teacher admin"`
	StudentID    string `json:"studentId,omitempty"`
	Email        string `json:"email,omitempty" validate:"omitempty,email"`
	Phone        string `json:"phone,omitempty"`
	FacultyID    ID     `json:"facultyId,omitempty"`
	DepartmentID ID     `json:"departmentId,omitempty"`
	MajorID      ID     `json:"majorId,omitempty"`
	Captcha      string `json:"captcha,omitempty"`
	CaptchaID    string `json:"captcha_id,omitempty"`
}

// Validate checks the registration payload
func (r Registration) Validate() error {
	return validateStruct(r)
}

// PasswordReset is the payload of a reset-password call
type PasswordReset struct {
	Username    string `json:"username" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
	Captcha     string `json:"captcha,omitempty"`
	CaptchaID   string `json:"captcha_id,omitempty"`
}

// Validate checks the reset payload
func (p PasswordReset) Validate() error {
	return validateStruct(p)
}

// Captcha is a server generated challenge
type Captcha struct {
	ID    string `json:"captcha_id"`
	Image string `json:"image"`
}
