package model

import (
	"time"
)

const (
	RoleStudent   = "student"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

type User struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email     *string   `gorm:"size:100;uniqueIndex" json:"email,omitempty"`
	AvatarURL string    `gorm:"size:500" json:"avatar_url"`
	Role      string    `gorm:"size:20;default:student" json:"role"` // student, moderator, admin
	CollegeID *int64    `gorm:"index" json:"college_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// IsStaff 版主和管理员可以绕过学院限制
func (u *User) IsStaff() bool {
	return u.Role == RoleModerator || u.Role == RoleAdmin
}
