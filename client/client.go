package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/trovehq/trove"
)

const defaultTimeout = 3 * time.Second

// Client is an HTTP client for a trove server. Item and profile reads are
// cached briefly; everything mutating goes straight through.
type Client struct {
	client    *http.Client
	cache     *cache.Cache
	baseURL   string
	authToken string
}

func New(baseURL string, authToken string) *Client {
	httpClient := http.Client{
		Timeout: defaultTimeout,
	}

	return &Client{
		client:    &httpClient,
		cache:     cache.New(30*time.Second, 1*time.Minute),
		baseURL:   baseURL,
		authToken: authToken,
	}
}

func (c *Client) request(ctx context.Context, method, path string, payload any, response any) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if response == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}

// Item is the client-side view of a found item.
type Item struct {
	ID          string `json:"id"`
	FinderID    string `json:"finderID"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"imageURL,omitempty"`
	Status      string `json:"status"`
}

// Claim is the client-side view of an ownership claim.
type Claim struct {
	ID         string `json:"id"`
	ItemID     string `json:"itemID"`
	ClaimantID string `json:"claimantID"`
	Status     string `json:"status"`
	ProofText  string `json:"proofText"`
	ChatID     string `json:"chatID,omitempty"`
}

// Chat is the client-side view of a claim chat.
type Chat struct {
	ID             string `json:"id"`
	ItemID         string `json:"itemID"`
	ClaimID        string `json:"claimID"`
	FinderID       string `json:"finderID"`
	ClaimantID     string `json:"claimantID"`
	FinderUnread   int    `json:"finderUnread"`
	ClaimantUnread int    `json:"claimantUnread"`
	IsFrozen       bool   `json:"isFrozen"`
	IsClosed       bool   `json:"isClosed"`
}

// Message is the client-side view of a chat message.
type Message struct {
	ID       string `json:"id"`
	ChatID   string `json:"chatID"`
	SenderID string `json:"senderID"`
	Body     string `json:"body"`
}

// Profile is the client-side view of a trust profile.
type Profile struct {
	UserID     string `json:"userID"`
	TrustScore int    `json:"trustScore"`
	TrustTier  string `json:"trustTier"`
}

func (c *Client) GetItem(ctx context.Context, itemID string) (Item, error) {
	cacheKey := "item:" + itemID
	if x, found := c.cache.Get(cacheKey); found {
		return x.(Item), nil
	}

	var item Item
	err := c.request(ctx, http.MethodGet, "/api/v1/items/"+itemID, nil, &item)
	if err != nil {
		return Item{}, err
	}

	c.cache.Set(cacheKey, item, cache.DefaultExpiration)
	return item, nil
}

func (c *Client) CreateItem(ctx context.Context, title, description, imageRef string) (Item, error) {
	var item Item
	err := c.request(ctx, http.MethodPost, "/api/v1/items", map[string]string{
		"title":       title,
		"description": description,
		"imageRef":    imageRef,
	}, &item)
	return item, err
}

func (c *Client) SubmitClaim(ctx context.Context, itemID, proofText, proofImageRef string) (Claim, error) {
	var claim Claim
	err := c.request(ctx, http.MethodPost, "/api/v1/items/"+itemID+"/claims", map[string]string{
		"proofText":     proofText,
		"proofImageRef": proofImageRef,
	}, &claim)
	return claim, err
}

func (c *Client) Decide(ctx context.Context, claimID string, decision string) error {
	return c.request(ctx, http.MethodPost, "/api/v1/claims/"+claimID+"/decision", map[string]string{
		"decision": decision,
	}, nil)
}

func (c *Client) WithdrawClaim(ctx context.Context, claimID string) (Claim, error) {
	var claim Claim
	err := c.request(ctx, http.MethodPost, "/api/v1/claims/"+claimID+"/withdraw", nil, &claim)
	return claim, err
}

func (c *Client) MarkReturned(ctx context.Context, itemID string) (Item, error) {
	var item Item
	err := c.request(ctx, http.MethodPost, "/api/v1/items/"+itemID+"/returned", nil, &item)
	return item, err
}

func (c *Client) GetChat(ctx context.Context, chatID string) (Chat, error) {
	var chat Chat
	err := c.request(ctx, http.MethodGet, "/api/v1/chats/"+chatID, nil, &chat)
	return chat, err
}

func (c *Client) SendMessage(ctx context.Context, chatID, body string) (Message, error) {
	var msg Message
	err := c.request(ctx, http.MethodPost, "/api/v1/chats/"+chatID+"/messages", map[string]string{
		"body": body,
	}, &msg)
	return msg, err
}

func (c *Client) MarkRead(ctx context.Context, chatID string) (Chat, error) {
	var chat Chat
	err := c.request(ctx, http.MethodPost, "/api/v1/chats/"+chatID+"/read", nil, &chat)
	return chat, err
}

func (c *Client) GetMyProfile(ctx context.Context) (Profile, error) {
	var profile Profile
	err := c.request(ctx, http.MethodGet, "/api/v1/trust/me", nil, &profile)
	return profile, err
}

func (c *Client) GetProfile(ctx context.Context, userID string) (Profile, error) {
	cacheKey := "profile:" + userID
	if x, found := c.cache.Get(cacheKey); found {
		return x.(Profile), nil
	}

	var profile Profile
	err := c.request(ctx, http.MethodGet, "/api/v1/trust/"+userID, nil, &profile)
	if err != nil {
		return Profile{}, err
	}

	c.cache.Set(cacheKey, profile, cache.DefaultExpiration)
	return profile, nil
}

// ApplyEvent forwards a realtime event into the local view reducer and
// drops the stale cache entry for the touched resource.
func (c *Client) ApplyEvent(view *View, event trove.Event) {
	switch event.Resource {
	case trove.ResourceItem:
		c.cache.Delete("item:" + event.ID)
	case trove.ResourceProfile:
		c.cache.Delete("profile:" + event.ID)
	}
	view.Apply(event)
}
