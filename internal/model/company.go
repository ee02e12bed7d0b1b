package model

import "time"

// Company is a tenant: one storefront with one connected Messenger page.
type Company struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	PageID          string    `json:"page_id"`
	PageAccessToken string    `json:"-"`
	AIEnabled       bool      `json:"ai_enabled"`
	SystemPrompt    string    `json:"system_prompt,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
