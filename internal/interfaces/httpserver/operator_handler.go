package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"concierge-server/internal/domain/chaterrors"
	"concierge-server/internal/domain/conversation"
	"concierge-server/internal/domain/dialog"
	"concierge-server/internal/domain/settings"
)

// OperatorHandler exposes the dashboard-facing endpoints: agent chat,
// conversation listing and history, and the automation controls.
type OperatorHandler struct {
	dialog   *dialog.Service
	repo     conversation.Repository
	settings settings.Repository
	log      zerolog.Logger
}

func newOperatorHandler(dialogSvc *dialog.Service, repo conversation.Repository, settingsRepo settings.Repository, log zerolog.Logger) *OperatorHandler {
	return &OperatorHandler{
		dialog:   dialogSvc,
		repo:     repo,
		settings: settingsRepo,
		log:      log.With().Str("handler", "operator").Logger(),
	}
}

// Chat handles POST /chat: an agent-authored message on a conversation.
func (h *OperatorHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agentID := c.GetHeader("X-Agent-ID")
	if agentID == "" {
		agentID = "operator"
	}

	if err := h.dialog.HandleAgentMessage(c.Request.Context(), req.ConversationID, agentID, req.Message); err != nil {
		h.handleError(c, err, "agent message failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// List handles GET /conversations.
func (h *OperatorHandler) List(c *gin.Context) {
	filter := conversation.Filter{VisibleOnly: true}
	if ch := c.Query("channel"); ch != "" {
		channel := conversation.Channel(ch)
		if !channel.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel"})
			return
		}
		filter.Channel = &channel
	}

	convs, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err, "list conversations failed")
		return
	}

	out := make([]conversationSummary, 0, len(convs))
	for _, conv := range convs {
		out = append(out, mapConversation(conv))
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

// Messages handles GET /conversations/:id/messages.
func (h *OperatorHandler) Messages(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	if _, err := h.repo.FindByID(c.Request.Context(), id); err != nil {
		h.handleError(c, err, "conversation lookup failed")
		return
	}

	msgs, err := h.repo.RecentMessages(c.Request.Context(), id, limit)
	if err != nil {
		h.handleError(c, err, "load messages failed")
		return
	}

	out := make([]messagePayload, 0, len(msgs))
	for i := range msgs {
		out = append(out, mapMessage(&msgs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// SetAutomation handles PUT /conversations/:id/automation.
func (h *OperatorHandler) SetAutomation(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}

	var req automationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.dialog.SetAutomation(c.Request.Context(), id, *req.Enabled); err != nil {
		h.handleError(c, err, "set automation failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// HandBack handles POST /conversations/:id/handback.
func (h *OperatorHandler) HandBack(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}

	if err := h.dialog.HandBackToAI(c.Request.Context(), id); err != nil {
		h.handleError(c, err, "hand back failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "handed_back"})
}

// GetAutomationSwitch handles GET /settings/automation.
func (h *OperatorHandler) GetAutomationSwitch(c *gin.Context) {
	sw, err := h.settings.GetAutomationSwitch(c.Request.Context())
	if err != nil {
		h.handleError(c, err, "read automation switch failed")
		return
	}
	c.JSON(http.StatusOK, sw)
}

// SetAutomationSwitch handles PUT /settings/automation.
func (h *OperatorHandler) SetAutomationSwitch(c *gin.Context) {
	var req automationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sw, err := h.settings.SetAutomationSwitch(c.Request.Context(), *req.Enabled)
	if err != nil {
		h.handleError(c, err, "toggle automation switch failed")
		return
	}
	h.log.Info().Bool("enabled", sw.Enabled).Msg("global automation switch toggled")
	c.JSON(http.StatusOK, sw)
}

func (h *OperatorHandler) conversationID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return 0, false
	}
	return uint(id), true
}

func (h *OperatorHandler) handleError(c *gin.Context, err error, msg string) {
	if chaterrors.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	h.log.Error().Err(err).Msg(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
