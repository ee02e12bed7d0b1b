package dto

import "time"

// SmartDelayConfig carries delays in milliseconds on the wire.
type SmartDelayConfig struct {
	ShortFragmentMS  *int64 `json:"short_fragment_ms"`
	DirectQuestionMS *int64 `json:"direct_question_ms"`
	LongStatementMS  *int64 `json:"long_statement_ms"`
	MaxDelayMS       *int64 `json:"max_delay_ms"`
	LongThreshold    *int   `json:"long_threshold"`
}

type SmartDelayConfigResponse struct {
	ShortFragmentMS  int64 `json:"short_fragment_ms"`
	DirectQuestionMS int64 `json:"direct_question_ms"`
	LongStatementMS  int64 `json:"long_statement_ms"`
	MaxDelayMS       int64 `json:"max_delay_ms"`
	LongThreshold    int   `json:"long_threshold"`
}

type PendingConversation struct {
	Key             string    `json:"key"`
	Pending         int       `json:"pending"`
	FirstReceivedAt time.Time `json:"first_received_at"`
	Deadline        time.Time `json:"deadline"`
	Generation      uint64    `json:"generation"`
}

type PendingConversationsResponse struct {
	Conversations []PendingConversation `json:"conversations"`
	Total         int                   `json:"total"`
}

type FlushOneResponse struct {
	Key     string `json:"key"`
	Flushed bool   `json:"flushed"`
}

type FlushAllResponse struct {
	Dispatched int `json:"dispatched"`
}

type ClassifyRequest struct {
	Text string `json:"text" binding:"required"`
}

type ClassifyResponse struct {
	Category string `json:"category"`
	DelayMS  int64  `json:"delay_ms"`
}
