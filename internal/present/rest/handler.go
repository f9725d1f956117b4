package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/trovehq/trove"
	"github.com/trovehq/trove/internal/domain"
	"github.com/trovehq/trove/internal/present/rest/presenter"
	"github.com/trovehq/trove/internal/usecase"
)

// RealtimeStreamer bridges subscription requests to a live event feed. An
// implementation owns the send side of the response channel and returns
// when the context is canceled or the request channel closes; the caller
// must never close the response channel.
type RealtimeStreamer interface {
	Realtime(ctx context.Context, request <-chan []string, response chan<- trove.Event)
}

type Handler struct {
	claim  *usecase.ClaimUsecase
	trust  *usecase.TrustUsecase
	chat   *usecase.ChatUsecase
	signal RealtimeStreamer
}

func NewHandler(
	claim *usecase.ClaimUsecase,
	trust *usecase.TrustUsecase,
	chat *usecase.ChatUsecase,
	signal RealtimeStreamer,
) *Handler {
	return &Handler{
		claim:  claim,
		trust:  trust,
		chat:   chat,
		signal: signal,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/v1/items", h.handleCreateItem)
	e.GET("/api/v1/items/:id", h.handleGetItem)
	e.POST("/api/v1/items/:id/claims", h.handleSubmitClaim)
	e.GET("/api/v1/items/:id/claims", h.handleListClaims)
	e.POST("/api/v1/items/:id/returned", h.handleMarkReturned)
	e.POST("/api/v1/claims/:id/decision", h.handleDecision)
	e.POST("/api/v1/claims/:id/withdraw", h.handleWithdraw)
	e.GET("/api/v1/chats/:id", h.handleGetChat)
	e.GET("/api/v1/chats/:id/messages", h.handleListMessages)
	e.POST("/api/v1/chats/:id/messages", h.handleSendMessage)
	e.POST("/api/v1/chats/:id/read", h.handleMarkRead)
	e.POST("/api/v1/chats/:id/freeze", h.handleFreeze)
	e.POST("/api/v1/chats/:id/unfreeze", h.handleUnfreeze)
	e.POST("/api/v1/chats/:id/close", h.handleClose)
	e.POST("/api/v1/trust/events", h.handleTrustEvent)
	e.GET("/api/v1/trust/me", h.handleMyTrust)
	e.GET("/api/v1/trust/me/logs", h.handleMyTrustLogs)
	e.GET("/api/v1/trust/:id", h.handleGetTrust)
	e.PUT("/api/v1/trust/:id/override", h.handleTrustOverride)
	e.GET("/realtime", h.handleRealtime)
}

// requester pulls the authenticated identity off the request context.
func requester(c echo.Context) (string, bool) {
	ctx := c.Request().Context()
	id, ok := ctx.Value(domain.RequesterIdCtxKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func requesterIsAdmin(c echo.Context) bool {
	isAdmin, ok := c.Request().Context().Value(domain.RequesterIsAdminCtxKey).(bool)
	return ok && isAdmin
}

type createItemRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageRef    string `json:"imageRef"`
}

func (h *Handler) handleCreateItem(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := requester(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	var req createItemRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	item, err := h.claim.CreateItem(ctx, usecase.CreateItemInput{
		FinderID:    userID,
		Title:       req.Title,
		Description: req.Description,
		ImageRef:    req.ImageRef,
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Created(c, item)
}

func (h *Handler) handleGetItem(c echo.Context) error {
	ctx := c.Request().Context()

	item, err := h.claim.GetItem(ctx, c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, item)
}

type submitClaimRequest struct {
	ProofText     string `json:"proofText"`
	ProofImageRef string `json:"proofImageRef"`
}

func (h *Handler) handleSubmitClaim(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := requester(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	var req submitClaimRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	claim, err := h.claim.Submit(ctx, usecase.SubmitInput{
		ItemID:        c.Param("id"),
		ClaimantID:    userID,
		ProofText:     req.ProofText,
		ProofImageRef: req.ProofImageRef,
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Created(c, claim)
}

func (h *Handler) handleListClaims(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := requester(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	claims, err := h.claim.ListClaims(ctx, c.Param("id"), userID)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, claims)
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

func (h *Handler) handleDecision(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := requester(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	var req decisionRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	result, err := h.claim.Decide(ctx, c.Param("id"), domain.Decision(req.Decision), userID)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, result)
}

func (h *Handler) handleWithdraw(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := requester(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	claim, err := h.claim.Withdraw(ctx, c.Param("id"), userID)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, claim)
}

func (h *Handler) handleMarkReturned(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := requester(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	item, err := h.claim.MarkReturned(ctx, c.Param("id"), userID)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, item)
}

func (h *Handler) handleGetChat(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := requester(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	chat, err := h.chat.Get(ctx, c.Param("id"), userID)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, chat)
}

func (h *Handler) handleListMessages(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := requester(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	limit := 0
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid limit parameter")
		}
		limit = parsed
	}

	messages, err := h.chat.ListMessages(ctx, c.Param("id"), userID, limit)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, messages)
}

type sendMessageRequest struct {
	Body string `json:"body"`
}

func (h *Handler) handleSendMessage(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := requester(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	msg, err := h.chat.SendMessage(ctx, c.Param("id"), userID, req.Body)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Created(c, msg)
}

func (h *Handler) handleMarkRead(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := requester(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	chat, err := h.chat.MarkRead(ctx, c.Param("id"), userID)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, chat)
}

type moderationRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleFreeze(c echo.Context) error {
	return h.handleChatModeration(c, "freeze")
}

func (h *Handler) handleUnfreeze(c echo.Context) error {
	return h.handleChatModeration(c, "unfreeze")
}

func (h *Handler) handleClose(c echo.Context) error {
	return h.handleChatModeration(c, "close")
}

func (h *Handler) handleChatModeration(c echo.Context, op string) error {
	ctx := c.Request().Context()

	userID, ok := requester(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}
	isAdmin := requesterIsAdmin(c)

	var req moderationRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	var chat domain.Chat
	var err error
	switch op {
	case "freeze":
		chat, err = h.chat.Freeze(ctx, c.Param("id"), userID, isAdmin, req.Reason)
	case "unfreeze":
		chat, err = h.chat.Unfreeze(ctx, c.Param("id"), userID, isAdmin, req.Reason)
	case "close":
		chat, err = h.chat.Close(ctx, c.Param("id"), userID, isAdmin, req.Reason)
	}
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, chat)
}

type trustEventRequest struct {
	UserID    string `json:"userID"`
	Action    string `json:"action"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

// handleTrustEvent ingests ambient trust actions from collaborator
// services, the email verification worker for instance. Those services
// authenticate with privileged tokens.
func (h *Handler) handleTrustEvent(c echo.Context) error {
	ctx := c.Request().Context()

	actorID, ok := requester(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}
	if !requesterIsAdmin(c) {
		return presenter.Error(c, domain.ForbiddenError{Actor: actorID, Operation: "record trust events"})
	}

	var req trustEventRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	app, err := h.trust.ApplyEvent(ctx, domain.TrustEventSpec{
		UserID:    req.UserID,
		Action:    domain.TrustAction(req.Action),
		Reference: req.Reference,
		Reason:    req.Reason,
		ActorID:   actorID,
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, app)
}

func (h *Handler) handleMyTrust(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := requester(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	profile, err := h.trust.GetMyScore(ctx, userID)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, profile)
}

func (h *Handler) handleMyTrustLogs(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := requester(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	limit := 0
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid limit parameter")
		}
		limit = parsed
	}

	logs, err := h.trust.GetMyLogs(ctx, userID, limit)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, logs)
}

func (h *Handler) handleGetTrust(c echo.Context) error {
	ctx := c.Request().Context()

	profile, err := h.trust.GetProfile(ctx, c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, profile)
}

type overrideRequest struct {
	NewScore int    `json:"newScore"`
	Reason   string `json:"reason"`
}

func (h *Handler) handleTrustOverride(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := requester(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}
	isAdmin := requesterIsAdmin(c)

	var req overrideRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	app, err := h.trust.AdminOverride(ctx, userID, isAdmin, c.Param("id"), req.NewScore, req.Reason)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, app)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type realtimeRequest struct {
	Type string `json:"type"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	userID, ok := requester(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	ctx := c.Request().Context()

	input := make(chan []string)
	defer close(input)
	// output stays open: the streamer owns the send side and may be mid-send
	// while we tear down, so it must exit through the canceled request
	// context or the closed input channel instead.
	output := make(chan trove.Event)

	go h.signal.Realtime(ctx, input, output)

	// A client only ever receives its own stream; the channel is derived
	// from the authenticated identity, never from the request.
	select {
	case input <- []string{trove.UserChannel(userID)}:
	case <-ctx.Done():
		return nil
	}

	quit := make(chan struct{}, 1)

	go func() {
		for {
			var req realtimeRequest
			err := ws.ReadJSON(&req)
			if err != nil {

				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}

				quit <- struct{}{}
				break
			}

			switch req.Type {
			case "h": // heartbeat
				// do nothing
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event := <-output:
			err := ws.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
