package model

import (
	"time"
)

const (
	PanelNational = "national"
	PanelCollege  = "college"
)

// Resource 学术资源文件元数据，文件本身不在本服务存储
type Resource struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	UploaderID  int64     `gorm:"not null;index" json:"uploader_id"`
	Panel       string    `gorm:"size:20;not null;default:national" json:"panel"` // national, college
	CollegeID   *int64    `gorm:"index" json:"college_id,omitempty"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	FileName    string    `gorm:"size:255" json:"file_name"`
	IsLocked    bool      `gorm:"default:true" json:"is_locked"`
	Price       float64   `gorm:"type:decimal(10,2)" json:"price"`
	Currency    string    `gorm:"size:3" json:"currency"`
	UnlockCount int       `gorm:"default:0" json:"unlock_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Resource) TableName() string {
	return "resources"
}
