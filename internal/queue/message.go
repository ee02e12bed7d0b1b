package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront.chat/relay/internal/smartdelay"
)

// ReplyMessage is one merged batch travelling from the scheduler to the reply
// worker. ID is the stream entry ID and is empty before publishing.
type ReplyMessage struct {
	ID      string
	Batch   smartdelay.Batch
	Attempt int
	TraceID string
	Raw     redis.XMessage
}

func ParseMessage(msg redis.XMessage) (ReplyMessage, error) {
	batchID, err := parseInt64(msg.Values, "batch_id")
	if err != nil {
		return ReplyMessage{}, err
	}
	key, err := parseString(msg.Values, "conversation_key")
	if err != nil {
		return ReplyMessage{}, err
	}
	if key == "" {
		return ReplyMessage{}, fmt.Errorf("empty conversation_key")
	}

	text, err := parseOptionalString(msg.Values, "text")
	if err != nil {
		return ReplyMessage{}, err
	}
	traceID, err := parseOptionalString(msg.Values, "trace_id")
	if err != nil {
		return ReplyMessage{}, err
	}

	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return ReplyMessage{}, err
	}
	if attempt == 0 {
		attempt = 1
	}
	fragmentCount, err := parseOptionalInt(msg.Values, "fragment_count")
	if err != nil {
		return ReplyMessage{}, err
	}

	var attachments []smartdelay.Attachment
	if err := parseOptionalJSON(msg.Values, "attachments", &attachments); err != nil {
		return ReplyMessage{}, err
	}
	var fragmentIDs []string
	if err := parseOptionalJSON(msg.Values, "fragment_ids", &fragmentIDs); err != nil {
		return ReplyMessage{}, err
	}

	firstAt, err := parseOptionalTime(msg.Values, "first_received_at")
	if err != nil {
		return ReplyMessage{}, err
	}
	lastAt, err := parseOptionalTime(msg.Values, "last_received_at")
	if err != nil {
		return ReplyMessage{}, err
	}

	return ReplyMessage{
		ID: msg.ID,
		Batch: smartdelay.Batch{
			ID:              batchID,
			Key:             key,
			Text:            text,
			Attachments:     attachments,
			FragmentIDs:     fragmentIDs,
			FragmentCount:   fragmentCount,
			FirstReceivedAt: firstAt,
			LastReceivedAt:  lastAt,
		},
		Attempt: attempt,
		TraceID: traceID,
		Raw:     msg,
	}, nil
}

func messageValues(msg ReplyMessage, attempt int) (map[string]any, error) {
	b := msg.Batch
	values := map[string]any{
		"batch_id":         b.ID,
		"conversation_key": b.Key,
		"text":             b.Text,
		"fragment_count":   b.FragmentCount,
		"attempt":          attempt,
	}

	if len(b.Attachments) > 0 {
		data, err := json.Marshal(b.Attachments)
		if err != nil {
			return nil, fmt.Errorf("encoding attachments: %w", err)
		}
		values["attachments"] = string(data)
	}
	if len(b.FragmentIDs) > 0 {
		data, err := json.Marshal(b.FragmentIDs)
		if err != nil {
			return nil, fmt.Errorf("encoding fragment_ids: %w", err)
		}
		values["fragment_ids"] = string(data)
	}
	if !b.FirstReceivedAt.IsZero() {
		values["first_received_at"] = b.FirstReceivedAt.UTC().Format(time.RFC3339Nano)
	}
	if !b.LastReceivedAt.IsZero() {
		values["last_received_at"] = b.LastReceivedAt.UTC().Format(time.RFC3339Nano)
	}
	if msg.TraceID != "" {
		values["trace_id"] = msg.TraceID
	}

	return values, nil
}

func parseInt64(values map[string]any, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	return fmt.Sprint(raw), nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", nil
	}
	return fmt.Sprint(raw), nil
}

func parseOptionalJSON(values map[string]any, key string, dst any) error {
	raw, ok := values[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal([]byte(fmt.Sprint(raw)), dst); err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	return nil
}

func parseOptionalTime(values map[string]any, key string) (time.Time, error) {
	raw, ok := values[key]
	if !ok {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, fmt.Sprint(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", key, err)
	}
	return t, nil
}
