package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/trovehq/trove"
	"github.com/trovehq/trove/internal/domain"
	"github.com/trovehq/trove/internal/usecase"
)

// --- mocks ---

type mockClaimRepo struct {
	items  map[string]domain.Item
	claims map[string]domain.Claim
}

func newMockClaimRepo() *mockClaimRepo {
	return &mockClaimRepo{items: map[string]domain.Item{}, claims: map[string]domain.Claim{}}
}

func (m *mockClaimRepo) CreateItem(ctx context.Context, item domain.Item) (domain.Item, error) {
	item.Status = domain.ItemActive
	m.items[item.ID] = item
	return item, nil
}

func (m *mockClaimRepo) GetItem(ctx context.Context, itemID string) (domain.Item, error) {
	item, ok := m.items[itemID]
	if !ok {
		return domain.Item{}, domain.NotFoundError{Resource: "item"}
	}
	return item, nil
}

func (m *mockClaimRepo) GetClaim(ctx context.Context, claimID string) (domain.Claim, error) {
	claim, ok := m.claims[claimID]
	if !ok {
		return domain.Claim{}, domain.NotFoundError{Resource: "claim"}
	}
	return claim, nil
}

func (m *mockClaimRepo) ListClaimsByItem(ctx context.Context, itemID string) ([]domain.Claim, error) {
	var out []domain.Claim
	for _, claim := range m.claims {
		if claim.ItemID == itemID {
			out = append(out, claim)
		}
	}
	return out, nil
}

func (m *mockClaimRepo) SubmitClaim(ctx context.Context, claim domain.Claim) (domain.Claim, error) {
	claim.Status = domain.ClaimPending
	m.claims[claim.ID] = claim
	return claim, nil
}

func (m *mockClaimRepo) ExecuteDecision(ctx context.Context, cascade domain.ApprovalCascade) (domain.DecisionResult, error) {
	target := m.claims[cascade.ClaimID]
	target.Status = domain.ClaimApproved
	m.claims[cascade.ClaimID] = target
	item := m.items[cascade.ItemID]
	item.Status = domain.ItemClaimed
	m.items[cascade.ItemID] = item
	return domain.DecisionResult{Claim: target, Item: item}, nil
}

func (m *mockClaimRepo) RejectClaim(ctx context.Context, claimID string, reason string, penalty *domain.TrustEventSpec) (domain.Claim, *domain.TrustApplication, error) {
	claim := m.claims[claimID]
	claim.Status = domain.ClaimRejected
	m.claims[claimID] = claim
	return claim, nil, nil
}

func (m *mockClaimRepo) WithdrawClaim(ctx context.Context, claimID string) (domain.Claim, error) {
	claim := m.claims[claimID]
	claim.Status = domain.ClaimWithdrawn
	m.claims[claimID] = claim
	return claim, nil
}

func (m *mockClaimRepo) MarkReturned(ctx context.Context, itemID string, finderID string) (domain.Item, domain.TrustApplication, error) {
	item := m.items[itemID]
	item.Status = domain.ItemReturned
	m.items[itemID] = item
	return item, domain.TrustApplication{Entry: domain.TrustLogEntry{UserID: finderID}}, nil
}

type mockChatRepo struct {
	chats map[string]domain.Chat
}

func (m *mockChatRepo) Provision(ctx context.Context, chat domain.Chat) (domain.Chat, error) {
	m.chats[chat.ID] = chat
	return chat, nil
}

func (m *mockChatRepo) Get(ctx context.Context, chatID string) (domain.Chat, error) {
	chat, ok := m.chats[chatID]
	if !ok {
		return domain.Chat{}, domain.NotFoundError{Resource: "chat"}
	}
	return chat, nil
}

func (m *mockChatRepo) CreateMessage(ctx context.Context, msg domain.Message) (domain.Message, domain.Chat, error) {
	chat, ok := m.chats[msg.ChatID]
	if !ok {
		return domain.Message{}, domain.Chat{}, domain.NotFoundError{Resource: "chat"}
	}
	if !chat.Participant(msg.SenderID) {
		return domain.Message{}, domain.Chat{}, domain.ForbiddenError{Actor: msg.SenderID, Operation: "write to this chat"}
	}
	if !chat.Writable() {
		return domain.Message{}, domain.Chat{}, domain.ChatUnavailableError{ChatID: chat.ID, Reason: "frozen"}
	}
	return msg, chat, nil
}

func (m *mockChatRepo) MarkRead(ctx context.Context, chatID string, userID string) (domain.Chat, error) {
	return m.chats[chatID], nil
}

func (m *mockChatRepo) SetFrozen(ctx context.Context, chatID string, frozen bool, actorID string, reason string) (domain.Chat, error) {
	chat := m.chats[chatID]
	chat.IsFrozen = frozen
	m.chats[chatID] = chat
	return chat, nil
}

func (m *mockChatRepo) Close(ctx context.Context, chatID string, actorID string, reason string) (domain.Chat, error) {
	chat := m.chats[chatID]
	chat.IsClosed = true
	m.chats[chatID] = chat
	return chat, nil
}

func (m *mockChatRepo) ListMessages(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	return nil, nil
}

func (m *mockChatRepo) CountUnread(ctx context.Context, chatID string, userID string) (int, error) {
	return 0, nil
}

func (m *mockChatRepo) ListUnprovisioned(ctx context.Context, limit int) ([]domain.Claim, error) {
	return nil, nil
}

type mockTrustRepo struct{}

func (m *mockTrustRepo) Apply(ctx context.Context, spec domain.TrustEventSpec) (domain.TrustApplication, error) {
	next, err := domain.NextScore(spec, domain.InitialTrustScore)
	if err != nil {
		return domain.TrustApplication{}, err
	}
	return domain.TrustApplication{
		PreviousScore: domain.InitialTrustScore,
		NewScore:      next,
		NewTier:       domain.TierForScore(next),
		Entry:         domain.TrustLogEntry{UserID: spec.UserID, Action: spec.Action},
	}, nil
}

func (m *mockTrustRepo) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	return domain.Profile{UserID: userID, TrustScore: domain.InitialTrustScore}, nil
}

func (m *mockTrustRepo) GetProfileReconciled(ctx context.Context, userID string) (domain.Profile, error) {
	return domain.Profile{UserID: userID, TrustScore: domain.InitialTrustScore}, nil
}

func (m *mockTrustRepo) ListLogs(ctx context.Context, userID string, limit int) ([]domain.TrustLogEntry, error) {
	return []domain.TrustLogEntry{}, nil
}

type mockPublisher struct{}

func (m *mockPublisher) PublishToUsers(ctx context.Context, userIDs []string, event trove.Event) {}

// floodStreamer keeps events in flight for as long as the connection
// lives, so teardown races with a blocked send.
type floodStreamer struct{}

func (f *floodStreamer) Realtime(ctx context.Context, request <-chan []string, response chan<- trove.Event) {
	select {
	case <-ctx.Done():
		return
	case _, ok := <-request:
		if !ok {
			return
		}
	}

	ev := trove.NewEvent(trove.ResourceMessage, trove.ActionInsert, "m1",
		trove.MessageDocument{ID: "m1", ChatID: "chat1", SenderID: "finder", Body: "found it"})
	for {
		select {
		case <-ctx.Done():
			return
		case response <- ev:
		}
	}
}

// identityMiddleware injects a fixed requester for tests.
func identityMiddleware(userID string, isAdmin bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if userID != "" {
				ctx = context.WithValue(ctx, domain.RequesterIdCtxKey, userID)
				ctx = context.WithValue(ctx, domain.RequesterIsAdminCtxKey, isAdmin)
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func newTestServer(claimRepo *mockClaimRepo, chatRepo *mockChatRepo, userID string, isAdmin bool) *echo.Echo {
	signal := &mockPublisher{}
	claimUC := usecase.NewClaimUsecase(claimRepo, signal, nil)
	trustUC := usecase.NewTrustUsecase(&mockTrustRepo{}, signal)
	chatUC := usecase.NewChatUsecase(chatRepo, claimRepo, signal)

	h := NewHandler(claimUC, trustUC, chatUC, nil)

	e := echo.New()
	e.Use(identityMiddleware(userID, isAdmin))
	h.RegisterRoutes(e)
	return e
}

func postJSON(e *echo.Echo, path string, payload any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)
	return res
}

// --- tests ---

func TestCreateItemRequiresAuth(t *testing.T) {
	e := newTestServer(newMockClaimRepo(), &mockChatRepo{chats: map[string]domain.Chat{}}, "", false)

	res := postJSON(e, "/api/v1/items", map[string]string{"title": "black umbrella"})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", res.Code)
	}
}

func TestCreateItem(t *testing.T) {
	repo := newMockClaimRepo()
	e := newTestServer(repo, &mockChatRepo{chats: map[string]domain.Chat{}}, "finder", false)

	res := postJSON(e, "/api/v1/items", map[string]string{"title": "black umbrella", "description": "left at pier 3"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", res.Code, res.Body.String())
	}

	var item domain.Item
	if err := json.Unmarshal(res.Body.Bytes(), &item); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if item.FinderID != "finder" || item.Status != domain.ItemActive {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestCreateItemMissingTitle(t *testing.T) {
	e := newTestServer(newMockClaimRepo(), &mockChatRepo{chats: map[string]domain.Chat{}}, "finder", false)

	res := postJSON(e, "/api/v1/items", map[string]string{"description": "no title"})
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", res.Code)
	}
}

func TestGetItemNotFound(t *testing.T) {
	e := newTestServer(newMockClaimRepo(), &mockChatRepo{chats: map[string]domain.Chat{}}, "finder", false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items/nope", nil)
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", res.Code)
	}
}

func TestSubmitClaimOnOwnItem(t *testing.T) {
	repo := newMockClaimRepo()
	repo.items["item1"] = domain.Item{ID: "item1", FinderID: "finder", Status: domain.ItemActive}
	e := newTestServer(repo, &mockChatRepo{chats: map[string]domain.Chat{}}, "finder", false)

	res := postJSON(e, "/api/v1/items/item1/claims", map[string]string{"proofText": "mine"})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", res.Code)
	}
}

func TestSubmitClaim(t *testing.T) {
	repo := newMockClaimRepo()
	repo.items["item1"] = domain.Item{ID: "item1", FinderID: "finder", Status: domain.ItemActive}
	e := newTestServer(repo, &mockChatRepo{chats: map[string]domain.Chat{}}, "alice", false)

	res := postJSON(e, "/api/v1/items/item1/claims", map[string]string{"proofText": "blue sticker inside"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", res.Code, res.Body.String())
	}
}

func TestDecisionByNonFinder(t *testing.T) {
	repo := newMockClaimRepo()
	repo.items["item1"] = domain.Item{ID: "item1", FinderID: "finder", Status: domain.ItemActive}
	repo.claims["c1"] = domain.Claim{ID: "c1", ItemID: "item1", ClaimantID: "alice", Status: domain.ClaimPending}
	e := newTestServer(repo, &mockChatRepo{chats: map[string]domain.Chat{}}, "alice", false)

	res := postJSON(e, "/api/v1/claims/c1/decision", map[string]string{"decision": "approved"})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", res.Code)
	}
}

func TestDecisionApprove(t *testing.T) {
	repo := newMockClaimRepo()
	repo.items["item1"] = domain.Item{ID: "item1", FinderID: "finder", Status: domain.ItemActive}
	repo.claims["c1"] = domain.Claim{ID: "c1", ItemID: "item1", ClaimantID: "alice", Status: domain.ClaimPending}
	e := newTestServer(repo, &mockChatRepo{chats: map[string]domain.Chat{}}, "finder", false)

	res := postJSON(e, "/api/v1/claims/c1/decision", map[string]string{"decision": "approved"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", res.Code, res.Body.String())
	}

	var result domain.DecisionResult
	if err := json.Unmarshal(res.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if result.Claim.Status != domain.ClaimApproved {
		t.Fatalf("unexpected decision result: %+v", result)
	}
}

func TestSendMessageToFrozenChat(t *testing.T) {
	chats := &mockChatRepo{chats: map[string]domain.Chat{
		"chat1": {ID: "chat1", FinderID: "finder", ClaimantID: "alice", IsFrozen: true},
	}}
	e := newTestServer(newMockClaimRepo(), chats, "alice", false)

	res := postJSON(e, "/api/v1/chats/chat1/messages", map[string]string{"body": "hello?"})
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", res.Code)
	}
}

func TestFreezeByNonAdmin(t *testing.T) {
	chats := &mockChatRepo{chats: map[string]domain.Chat{
		"chat1": {ID: "chat1", FinderID: "finder", ClaimantID: "alice"},
	}}
	e := newTestServer(newMockClaimRepo(), chats, "finder", false)

	res := postJSON(e, "/api/v1/chats/chat1/freeze", map[string]string{"reason": "dispute"})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", res.Code)
	}
}

func TestTrustEventByNonAdmin(t *testing.T) {
	e := newTestServer(newMockClaimRepo(), &mockChatRepo{chats: map[string]domain.Chat{}}, "alice", false)

	res := postJSON(e, "/api/v1/trust/events", map[string]string{
		"userID": "alice",
		"action": string(domain.ActionEmailVerified),
		"reason": "email confirmed",
	})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", res.Code)
	}
}

func TestTrustEventIngestion(t *testing.T) {
	e := newTestServer(newMockClaimRepo(), &mockChatRepo{chats: map[string]domain.Chat{}}, "verifier", true)

	res := postJSON(e, "/api/v1/trust/events", map[string]string{
		"userID":    "alice",
		"action":    string(domain.ActionEmailVerified),
		"reference": "alice",
		"reason":    "email confirmed",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", res.Code, res.Body.String())
	}

	var app domain.TrustApplication
	if err := json.Unmarshal(res.Body.Bytes(), &app); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if app.NewScore != domain.InitialTrustScore+domain.ActionEmailVerified.Delta() {
		t.Fatalf("unexpected application: %+v", app)
	}
}

func TestTrustOverrideByNonAdmin(t *testing.T) {
	e := newTestServer(newMockClaimRepo(), &mockChatRepo{chats: map[string]domain.Chat{}}, "alice", false)

	body, _ := json.Marshal(map[string]any{"newScore": 80, "reason": "appeals process complete"})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/trust/bob/override", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", res.Code)
	}
}

func TestRealtimeDisconnectDuringDelivery(t *testing.T) {
	signal := &mockPublisher{}
	claimRepo := newMockClaimRepo()
	claimUC := usecase.NewClaimUsecase(claimRepo, signal, nil)
	trustUC := usecase.NewTrustUsecase(&mockTrustRepo{}, signal)
	chatUC := usecase.NewChatUsecase(&mockChatRepo{chats: map[string]domain.Chat{}}, claimRepo, signal)
	h := NewHandler(claimUC, trustUC, chatUC, &floodStreamer{})

	e := echo.New()
	e.Use(identityMiddleware("alice", false))
	h.RegisterRoutes(e)

	srv := httptest.NewServer(e)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	var event trove.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if event.Resource != trove.ResourceMessage {
		t.Fatalf("unexpected event: %+v", event)
	}

	// Drop the socket while the streamer still has an event in flight and
	// let teardown finish. A send-side close here would take the whole
	// process down.
	conn.Close()
	time.Sleep(50 * time.Millisecond)

	conn2, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("redial failed: %v", err)
	}
	defer conn2.Close()
	if err := conn2.ReadJSON(&event); err != nil {
		t.Fatalf("read after reconnect failed: %v", err)
	}
}

func TestMyTrust(t *testing.T) {
	e := newTestServer(newMockClaimRepo(), &mockChatRepo{chats: map[string]domain.Chat{}}, "alice", false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trust/me", nil)
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}

	var profile domain.Profile
	if err := json.Unmarshal(res.Body.Bytes(), &profile); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if profile.UserID != "alice" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}
