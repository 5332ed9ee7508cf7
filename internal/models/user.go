package models

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

type User struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	Username     string `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"type:varchar(128);not null" json:"-"`
	Name         string `gorm:"type:varchar(128);not null" json:"name"`
	Role         Role   `gorm:"type:varchar(16);index;not null" json:"role"`

	// Teachers only. Never mutated directly; see approval.Repo credit methods.
	Credits int `gorm:"not null;default:0" json:"credits"`

	Classroom string  `gorm:"type:varchar(64)" json:"classroom,omitempty"`
	TeacherID *uint64 `gorm:"index" json:"-"` // students: owning teacher

	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func (User) TableName() string { return "users" }

// CreditEntry is one row of a teacher's credit ledger. Every change to
// User.Credits is written together with exactly one entry whose Amount
// matches the delta.
type CreditEntry struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"index;not null" json:"-"`
	Amount    int       `gorm:"not null" json:"amount"`
	Reason    string    `gorm:"type:varchar(255);not null" json:"reason"`
	AdminID   *uint64   `gorm:"index" json:"admin_id,omitempty"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}

func (CreditEntry) TableName() string { return "credit_entries" }
