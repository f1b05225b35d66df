// Package chat provides a client for the chat server's HTTP and websocket API.
package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a chat server API client.
type Client struct {
	BaseURL    string
	UserID     string
	HTTPClient *http.Client
}

// NewClient creates a new client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// doRequest performs an HTTP request.
func (c *Client) doRequest(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// Handshake fetches a participant ID and remembers it for Join.
func (c *Client) Handshake() (string, error) {
	respBody, err := c.doRequest("GET", "/client", nil)
	if err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", err
	}
	c.UserID = resp.ID
	return resp.ID, nil
}

// Room represents room metadata.
type Room struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// RoomsResponse is the response from listing rooms.
type RoomsResponse struct {
	Rooms []Room `json:"rooms"`
	Total int    `json:"total"`
}

// CreateRoom creates a new room.
func (c *Client) CreateRoom(name string) (*Room, error) {
	reqBody, _ := json.Marshal(map[string]string{"name": name})

	respBody, err := c.doRequest("POST", "/rooms", reqBody)
	if err != nil {
		return nil, err
	}

	var resp Room
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRooms lists all rooms.
func (c *Client) ListRooms() (*RoomsResponse, error) {
	respBody, err := c.doRequest("GET", "/rooms", nil)
	if err != nil {
		return nil, err
	}

	var resp RoomsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Message represents a chat message.
type Message struct {
	ID        string `json:"id,omitempty"`
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp int64  `json:"ts"`
}

// MessagesResponse is the response from getting room messages.
type MessagesResponse struct {
	Room     Room      `json:"room"`
	Messages []Message `json:"messages"`
}

// GetMessages retrieves recent messages from a room, oldest first.
func (c *Client) GetMessages(roomID string, limit int) (*MessagesResponse, error) {
	path := fmt.Sprintf("/rooms/%s/messages?limit=%d", roomID, limit)

	respBody, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp MessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StatsResponse is the response from the stats endpoint.
type StatsResponse struct {
	Rooms            int64 `json:"rooms"`
	Messages         int64 `json:"messages"`
	ConnectedClients int   `json:"connected_clients"`
}

// Stats fetches aggregate server counters.
func (c *Client) Stats() (*StatsResponse, error) {
	respBody, err := c.doRequest("GET", "/stats", nil)
	if err != nil {
		return nil, err
	}

	var resp StatsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health() (*HealthResponse, error) {
	respBody, err := c.doRequest("GET", "/health", nil)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Event is a fanout payload received over a room session.
type Event struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp int64  `json:"ts"`
}

// Session is a live websocket connection to a room.
type Session struct {
	conn *websocket.Conn
}

// Join opens a websocket session on a room. Handshake runs first if no
// participant ID is set yet.
func (c *Client) Join(roomID string) (*Session, error) {
	if c.UserID == "" {
		if _, err := c.Handshake(); err != nil {
			return nil, err
		}
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/" + roomID + "/" + c.UserID

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("join room: %s", resp.Status)
		}
		return nil, err
	}
	return &Session{conn: conn}, nil
}

// Send posts a message through the session.
func (s *Session) Send(body string) error {
	return s.conn.WriteJSON(map[string]string{"message": body})
}

// Next blocks until the next event arrives.
func (s *Session) Next() (*Event, error) {
	var evt Event
	if err := s.conn.ReadJSON(&evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

// Close ends the session.
func (s *Session) Close() error {
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
