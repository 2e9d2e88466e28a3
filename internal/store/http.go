package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hpungsan/mnemo/internal/errors"
)

// maxErrorBody caps how much of an error response is read for its message.
const maxErrorBody = 4096

// HTTPClient talks to the remote memory service over its JSON API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient creates a client for baseURL. Timeouts are the transport's:
// timeout bounds every request.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type createSubjectRequest struct {
	SubjectID string `json:"subject_id"`
}

type createConversationRequest struct {
	ConversationID string `json:"conversation_id"`
	SubjectID      string `json:"subject_id"`
}

type appendMessagesRequest struct {
	Messages []Message `json:"messages"`
}

type appendFactRequest struct {
	Text string `json:"text"`
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Facts []Fact `json:"facts"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// CreateSubject implements Client.
func (c *HTTPClient) CreateSubject(ctx context.Context, subjectID string) error {
	return c.post(ctx, "/v1/subjects", createSubjectRequest{SubjectID: subjectID}, nil)
}

// CreateConversation implements Client.
func (c *HTTPClient) CreateConversation(ctx context.Context, conversationID, subjectID string) error {
	return c.post(ctx, "/v1/conversations", createConversationRequest{
		ConversationID: conversationID,
		SubjectID:      subjectID,
	}, nil)
}

// AppendMessages implements Client.
func (c *HTTPClient) AppendMessages(ctx context.Context, conversationID string, messages []Message) error {
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	return c.post(ctx, path, appendMessagesRequest{Messages: messages}, nil)
}

// AppendFact implements Client.
func (c *HTTPClient) AppendFact(ctx context.Context, subjectID, text string) error {
	path := "/v1/subjects/" + url.PathEscape(subjectID) + "/facts"
	return c.post(ctx, path, appendFactRequest{Text: text}, nil)
}

// Search implements Client.
func (c *HTTPClient) Search(ctx context.Context, subjectID, query string, limit int) ([]Fact, error) {
	path := "/v1/subjects/" + url.PathEscape(subjectID) + "/facts/search"
	var resp searchResponse
	if err := c.post(ctx, path, searchRequest{Query: query, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Facts, nil
}

// post sends body as JSON and decodes a 2xx response into out when out is non-nil.
// Non-2xx statuses are classified with errors.FromStatus.
func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.NewInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Api-Key "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return &errors.MnemoError{
			Code:    errors.ErrUnavailable,
			Status:  503,
			Message: fmt.Sprintf("request %s failed: %v", path, err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.FromStatus(resp.StatusCode, readErrorMessage(resp.Body))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &errors.MnemoError{
			Code:    errors.ErrStoreFailure,
			Status:  502,
			Message: fmt.Sprintf("decode response from %s: %v", path, err),
		}
	}
	return nil
}

// readErrorMessage extracts a message from an error body, falling back to the raw text.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var e errorResponse
	if json.Unmarshal(data, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(data))
}
