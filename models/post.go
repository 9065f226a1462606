package models

import "time"

// Post represents a single blog article written by a user. Title and Body are
// mandatory; everything else is optional editorial metadata. PublishedAt gates
// visibility in public listings: a nil or future value keeps the post hidden.
type Post struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"index;not null" json:"user_id"`
	Title          string     `gorm:"size:255;not null" json:"title"`
	Body           string     `gorm:"type:text;not null" json:"body"`
	Summary        string     `gorm:"size:512" json:"summary"`
	Image          string     `gorm:"size:512" json:"image"` // relative path under the upload dir
	Category       string     `gorm:"size:64" json:"category"`
	Tags           string     `gorm:"size:255" json:"tags"`
	PublishedAt    *time.Time `gorm:"index" json:"published_at"`
	SEOTitle       string     `gorm:"size:255" json:"seo_title"`
	SEODescription string     `gorm:"size:512" json:"seo_description"`
	SEOKeywords    string     `gorm:"size:255" json:"seo_keywords"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	User           User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
}
