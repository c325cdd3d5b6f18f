package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// MailpitClient reads mail captured by Mailpit.
type MailpitClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMailpitClient creates a new Mailpit API client.
func NewMailpitClient(host string, port int) *MailpitClient {
	return &MailpitClient{
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// MailpitMessage is a captured email.
type MailpitMessage struct {
	ID      string           `json:"ID"`
	From    MailpitAddress   `json:"From"`
	To      []MailpitAddress `json:"To"`
	Subject string           `json:"Subject"`
	Snippet string           `json:"Snippet"`
	// Text and HTML are only filled by Message.
	Text string `json:"Text"`
	HTML string `json:"HTML"`
}

// MailpitAddress is an email address with display name.
type MailpitAddress struct {
	Address string `json:"Address"`
	Name    string `json:"Name"`
}

type messagesResponse struct {
	Messages []MailpitMessage `json:"messages"`
	Total    int              `json:"messages_count"`
}

// Messages returns the inbox summaries, newest first.
func (c *MailpitClient) Messages() ([]MailpitMessage, error) {
	var result messagesResponse
	if err := c.getJSON("/api/v1/messages", &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// Message returns a single message with its text and HTML bodies.
func (c *MailpitClient) Message(id string) (*MailpitMessage, error) {
	var msg MailpitMessage
	if err := c.getJSON("/api/v1/message/"+url.PathEscape(id), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Search returns messages matching a Mailpit search query such as "to:a@b.c".
func (c *MailpitClient) Search(query string) ([]MailpitMessage, error) {
	var result messagesResponse
	if err := c.getJSON("/api/v1/search?query="+url.QueryEscape(query), &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// DeleteAll clears the inbox.
func (c *MailpitClient) DeleteAll() error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/api/v1/messages", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete messages: status %d", resp.StatusCode)
	}
	return nil
}

// WaitForMessages polls until at least count messages arrived or timeout passes.
func (c *MailpitClient) WaitForMessages(count int, timeout time.Duration) ([]MailpitMessage, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error

	for time.Now().Before(deadline) {
		messages, err := c.Messages()
		if err == nil && len(messages) >= count {
			return messages, nil
		}
		lastErr = err
		time.Sleep(100 * time.Millisecond)
	}

	messages, _ := c.Messages()
	if lastErr != nil {
		return messages, fmt.Errorf("timeout waiting for %d messages (got %d): %w", count, len(messages), lastErr)
	}
	return messages, fmt.Errorf("timeout waiting for %d messages, got %d", count, len(messages))
}

func (c *MailpitClient) getJSON(path string, v any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("get %s: status %d: %s", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
