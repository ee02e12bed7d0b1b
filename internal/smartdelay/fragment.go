package smartdelay

import "time"

type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Fragment is one inbound chat segment. It is not modified after Enqueue.
type Fragment struct {
	ID          string
	Text        string
	Attachments []Attachment
	ReceivedAt  time.Time
}

// Batch is the merged view of a conversation's pending fragments at flush time.
type Batch struct {
	ID              int64
	Key             string
	Text            string
	Attachments     []Attachment
	FragmentIDs     []string
	FragmentCount   int
	FirstReceivedAt time.Time
	LastReceivedAt  time.Time
}

// QueueStats describes one pending conversation for the admin surface.
type QueueStats struct {
	Key             string    `json:"key"`
	Pending         int       `json:"pending"`
	FirstReceivedAt time.Time `json:"first_received_at"`
	Deadline        time.Time `json:"deadline"`
	Generation      uint64    `json:"generation"`
}
