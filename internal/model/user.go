package model

import "time"

// Roles a user may hold.  RoleAdmin unlocks the explicit elevated routes
// under /api/admin; it never bypasses ownership anywhere else.
const (
    RoleUser  = "user"
    RoleAdmin = "admin"
)

// User represents an application user record as stored in the `users`
// table.  PasswordHash is tagged `json:"-"` so that no outward
// representation of a user can ever carry it.
//
// Fields:
//  ID           – uuid primary key.
//  Name         – display name (2..100 characters).
//  Email        – unique email address, stored as given.
//  PasswordHash – bcrypt hash of the password.
//  Role         – user or admin.
//  IsActive     – inactive users cannot log in or use tokens.
//  LastLogin    – time of the last successful register/login (nullable).
type User struct {
    ID           string     `json:"id"`
    Name         string     `json:"name"`
    Email        string     `json:"email"`
    PasswordHash string     `json:"-"`
    Role         string     `json:"role"`
    IsActive     bool       `json:"isActive"`
    LastLogin    *time.Time `json:"lastLogin"`
    CreatedAt    time.Time  `json:"createdAt"`
    UpdatedAt    time.Time  `json:"updatedAt"`
}
