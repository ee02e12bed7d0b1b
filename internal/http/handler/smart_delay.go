package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storefront.chat/relay/internal/http/dto"
	"storefront.chat/relay/internal/smartdelay"
)

// SmartDelayAdmin is the operator surface of the smart delay scheduler.
type SmartDelayAdmin interface {
	Config() smartdelay.Config
	UpdateConfig(cfg smartdelay.Config) error
	Classify(text string) smartdelay.Classification
	Stats() []smartdelay.QueueStats
	FlushOne(ctx context.Context, key string) bool
	FlushAll(ctx context.Context) int
}

type SmartDelayHandler struct {
	scheduler SmartDelayAdmin
}

func NewSmartDelayHandler(scheduler SmartDelayAdmin) *SmartDelayHandler {
	return &SmartDelayHandler{scheduler: scheduler}
}

func (h *SmartDelayHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, toConfigResponse(h.scheduler.Config()))
}

// UpdateConfig applies a partial update; omitted fields keep their current value.
func (h *SmartDelayHandler) UpdateConfig(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SmartDelayConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := h.scheduler.Config()
	fields := []struct {
		name string
		ms   *int64
		dst  *time.Duration
	}{
		{"short_fragment_ms", req.ShortFragmentMS, &cfg.Delays.ShortFragment},
		{"direct_question_ms", req.DirectQuestionMS, &cfg.Delays.DirectQuestion},
		{"long_statement_ms", req.LongStatementMS, &cfg.Delays.LongStatement},
		{"max_delay_ms", req.MaxDelayMS, &cfg.MaxDelay},
	}
	for _, f := range fields {
		if f.ms == nil {
			continue
		}
		d, err := millis(*f.ms)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", f.name, err)})
			return
		}
		*f.dst = d
	}
	if req.LongThreshold != nil {
		cfg.LongThreshold = *req.LongThreshold
	}

	if err := h.scheduler.UpdateConfig(cfg); err != nil {
		if errors.Is(err, smartdelay.ErrInvalidConfig) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to update smart delay config", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update config"})
		return
	}

	c.JSON(http.StatusOK, toConfigResponse(cfg))
}

func (h *SmartDelayHandler) Classify(c *gin.Context) {
	var req dto.ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cl := h.scheduler.Classify(req.Text)
	c.JSON(http.StatusOK, dto.ClassifyResponse{
		Category: cl.Category.String(),
		DelayMS:  cl.Delay.Milliseconds(),
	})
}

func (h *SmartDelayHandler) ListPending(c *gin.Context) {
	stats := h.scheduler.Stats()

	resp := dto.PendingConversationsResponse{
		Conversations: make([]dto.PendingConversation, 0, len(stats)),
		Total:         len(stats),
	}
	for _, st := range stats {
		resp.Conversations = append(resp.Conversations, dto.PendingConversation{
			Key:             st.Key,
			Pending:         st.Pending,
			FirstReceivedAt: st.FirstReceivedAt,
			Deadline:        st.Deadline,
			Generation:      st.Generation,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SmartDelayHandler) FlushOne(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation key is required"})
		return
	}

	flushed := h.scheduler.FlushOne(c.Request.Context(), key)
	c.JSON(http.StatusOK, dto.FlushOneResponse{Key: key, Flushed: flushed})
}

func (h *SmartDelayHandler) FlushAll(c *gin.Context) {
	dispatched := h.scheduler.FlushAll(c.Request.Context())
	c.JSON(http.StatusOK, dto.FlushAllResponse{Dispatched: dispatched})
}

const maxMillis = int64(math.MaxInt64 / int64(time.Millisecond))

var errMillisOutOfRange = errors.New("value out of range")

func millis(ms int64) (time.Duration, error) {
	if ms > maxMillis || ms < -maxMillis {
		return 0, errMillisOutOfRange
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func toConfigResponse(cfg smartdelay.Config) dto.SmartDelayConfigResponse {
	return dto.SmartDelayConfigResponse{
		ShortFragmentMS:  cfg.Delays.ShortFragment.Milliseconds(),
		DirectQuestionMS: cfg.Delays.DirectQuestion.Milliseconds(),
		LongStatementMS:  cfg.Delays.LongStatement.Milliseconds(),
		MaxDelayMS:       cfg.MaxDelay.Milliseconds(),
		LongThreshold:    cfg.LongThreshold,
	}
}
