package storage

import "time"

// IterationModel is the GORM model for the iterations table
type IterationModel struct {
	Assistant  string `gorm:"not null;default:''"`
	Committed  bool   `gorm:"not null;default:false"`
	CreatedAt  time.Time
	Detail     string    `gorm:"default:''"`
	FinishedAt time.Time `gorm:"not null;index:idx_finished_at"`
	ID         uint      `gorm:"primaryKey"`
	Iteration  int       `gorm:"not null"`
	Outcome    string    `gorm:"not null;check:outcome IN ('completed','crashed','interrupted','timed_out')"`
	Role       string    `gorm:"not null;index:idx_role"`
	StartedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time
}

// TableName overrides gorm's default pluralized name
func (IterationModel) TableName() string { return "iterations" }
