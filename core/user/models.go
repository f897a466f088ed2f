package user

import (
	"net/mail"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rtemis/reimbursement/core"
)

// Roles
const (
	RoleAppAdmin      = "app_admin"
	RoleCentralAdmin  = "central_admin"
	RoleStateAdmin    = "state_admin"
	RoleDistrictAdmin = "district_admin"
	RoleBlockAdmin    = "block_admin"
	RoleSchoolAdmin   = "school_admin"
)

var (
	AuthorityRoles = []string{RoleCentralAdmin, RoleStateAdmin, RoleDistrictAdmin, RoleBlockAdmin}
	AllRoles       = []string{RoleAppAdmin, RoleCentralAdmin, RoleStateAdmin, RoleDistrictAdmin, RoleBlockAdmin, RoleSchoolAdmin}

	rolePriorities = map[string]int{
		RoleAppAdmin:      50,
		RoleCentralAdmin:  40,
		RoleStateAdmin:    30,
		RoleDistrictAdmin: 20,
		RoleBlockAdmin:    10,
		RoleSchoolAdmin:   1,
	}

	Roles = []Role{
		{Name: "School Admin", Value: RoleSchoolAdmin},
		{Name: "Block Education Officer", Value: RoleBlockAdmin},
		{Name: "District Education Officer", Value: RoleDistrictAdmin},
		{Name: "State Admin", Value: RoleStateAdmin},
		{Name: "Central Admin", Value: RoleCentralAdmin},
		{Name: "App Admin", Value: RoleAppAdmin},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"` // UDISE code for school admins
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) HasRole(role string) bool {
	return core.ContainsString(u.Roles, role)
}

func (u User) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if u.HasRole(role) {
			return true
		}
	}
	return false
}

func (u User) IsAdmin() bool {
	return u.HasRole(RoleAppAdmin)
}

func (u User) IsSchoolAdmin() bool {
	return u.HasRole(RoleSchoolAdmin)
}

// UDISECode is the school registry code a school admin logs in with.
func (u User) UDISECode() string {
	if !u.IsSchoolAdmin() {
		return ""
	}
	return u.Username
}

func (u User) MailAddress() (mail.Address, bool) {
	if u.Email == "" {
		return mail.Address{}, false
	}
	return mail.Address{Name: u.Name, Address: u.Email}, true
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"required,min=4,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"required,min=1,allroles"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
}

type GetFilter struct {
	ID              string
	UsernameOrEmail string
}

type QueryFilter struct {
	Search    string   `query:"search"`
	Roles     []string `query:"role"`
	IsActive  *bool    `query:"is_active"`
	Usernames []string `query:"username"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.Usernames == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	for i, uname := range qf.Usernames {
		qf.Usernames[i] = core.CleanString(uname, true /* lower */)
	}
}
