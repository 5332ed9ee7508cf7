package approval

import "time"

type PromptStatus string

const (
	PromptPending    PromptStatus = "pending"
	PromptApproved   PromptStatus = "approved"
	PromptRejected   PromptStatus = "rejected"
	PromptProcessing PromptStatus = "processing"
	PromptProcessed  PromptStatus = "processed"
)

// Reviewable reports whether a teacher decision may still be applied.
// Rejected and processed are terminal; approved/processing are owned by
// the generation pipeline.
func (s PromptStatus) Reviewable() bool { return s == PromptPending }

type ImageStatus string

const (
	ImagePending  ImageStatus = "pending"
	ImageApproved ImageStatus = "approved"
	ImageRejected ImageStatus = "rejected"
)

func (s ImageStatus) Reviewable() bool { return s == ImagePending }

type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

func (d Decision) Valid() bool { return d == DecisionApproved || d == DecisionRejected }

type SafetyLevel string

const (
	SafetySafe     SafetyLevel = "safe"
	SafetyModerate SafetyLevel = "moderate"
	SafetyUnsafe   SafetyLevel = "unsafe"
)

type Prompt struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	PromptID string `gorm:"type:varchar(26);uniqueIndex;not null" json:"prompt_id"`

	Content   string `gorm:"type:text;not null" json:"content"`
	StudentID uint64 `gorm:"index:idx_prompt_student_status,priority:1;not null" json:"student_id"`

	Status PromptStatus `gorm:"type:varchar(16);index:idx_prompt_student_status,priority:2;not null" json:"status"`

	ReviewerID      *uint64    `gorm:"index" json:"reviewer_id,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	RejectionReason *string    `gorm:"type:text" json:"rejection_reason,omitempty"`

	// Set once when generation succeeds.
	GeneratedImageID *string `gorm:"type:varchar(26);index" json:"generated_image_id,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (Prompt) TableName() string { return "prompts" }

type Image struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	ImageID string `gorm:"type:varchar(26);uniqueIndex;not null" json:"image_id"`

	Path          string `gorm:"type:text;not null" json:"path"`
	IsExternalURL bool   `gorm:"not null" json:"is_external_url"`

	PromptID  string `gorm:"type:varchar(26);index;not null" json:"prompt_id"`
	StudentID uint64 `gorm:"index;not null" json:"student_id"`

	Status      ImageStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	SafetyLevel SafetyLevel `gorm:"type:varchar(16);not null" json:"safety_level"`

	ReviewerID      *uint64    `gorm:"index" json:"reviewer_id,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	RejectionReason *string    `gorm:"type:text" json:"rejection_reason,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (Image) TableName() string { return "images" }
