package movetracksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Movetrack HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Attachment is an uploaded file referenced by a response.
type Attachment struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	SizeBytes  int64  `json:"size_bytes"`
	UploadedAt string `json:"uploaded_at"`
}

// TeamResponse is one team's answer (partial).
type TeamResponse struct {
	Status        string          `json:"status"`
	Comment       string          `json:"comment,omitempty"`
	SubmittedDate string          `json:"submitted_date,omitempty"`
	Checklist     map[string]bool `json:"checklist"`
	Attachments   []Attachment    `json:"attachments"`
}

// Movement represents the API movement model (partial). Details are left raw.
type Movement struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	TypeLabel     string                  `json:"type_label"`
	EmployeeName  string                  `json:"employee_name"`
	SelectedTeams []string                `json:"selected_teams"`
	Status        string                  `json:"status"`
	Responses     map[string]TeamResponse `json:"responses"`
	Details       json.RawMessage         `json:"details"`
	Deadline      string                  `json:"deadline,omitempty"`
	Version       int                     `json:"version"`
}

// Notification reports whether the people involved were told about a change.
type Notification struct {
	Delivered bool   `json:"delivered"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Mutation is the result of creating or editing a movement.
type Mutation struct {
	Movement     Movement     `json:"movement"`
	Notification Notification `json:"notification"`
}

// NewMovement is the create payload. Details follow the API schema, e.g.
// {"dismissal": {"date": "2025-11-14"}}.
type NewMovement struct {
	Type          string         `json:"type"`
	EmployeeName  string         `json:"employee_name"`
	SelectedTeams []string       `json:"selected_teams"`
	Details       map[string]any `json:"details,omitempty"`
	Deadline      string         `json:"deadline,omitempty"`
}

// ResponseSubmission is a team's answer.
type ResponseSubmission struct {
	Comment     string          `json:"comment"`
	Checklist   map[string]bool `json:"checklist,omitempty"`
	Attachments []Attachment    `json:"attachments,omitempty"`
}

// ReminderReport summarizes a reminder scan.
type ReminderReport struct {
	Day              string       `json:"day"`
	MovementsChecked int          `json:"movements_checked"`
	RemindersSent    int          `json:"reminders_sent"`
	Recipients       int          `json:"recipients"`
	AlreadySent      int          `json:"already_sent"`
	Retried          int          `json:"retried"`
	DryRun           bool         `json:"dry_run"`
	Notification     Notification `json:"notification"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a session token and keeps it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "v0/auth/login", map[string]any{"email": email, "password": password}, &resp)
	if err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

// CreateMovement creates a movement.
func (c *Client) CreateMovement(ctx context.Context, m NewMovement) (Mutation, error) {
	var resp Mutation
	err := c.do(ctx, http.MethodPost, "v0/movements", m, &resp)
	return resp, err
}

// GetMovement fetches a movement by id.
func (c *Client) GetMovement(ctx context.Context, id string) (Movement, error) {
	var resp Movement
	err := c.do(ctx, http.MethodGet, "v0/movements/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListMovements returns movements; status and team may be empty.
func (c *Client) ListMovements(ctx context.Context, status, team string) ([]Movement, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if team != "" {
		q.Set("team", team)
	}
	endpoint := "v0/movements"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Movement `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// UpdateMovement applies a partial edit, e.g. {"selected_teams": [...]}.
func (c *Client) UpdateMovement(ctx context.Context, id string, patch map[string]any) (Mutation, error) {
	var resp Mutation
	err := c.do(ctx, http.MethodPatch, "v0/movements/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

// DeleteMovement removes a movement.
func (c *Client) DeleteMovement(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/movements/"+url.PathEscape(id), nil, nil)
}

// SubmitResponse submits a team's answer.
func (c *Client) SubmitResponse(ctx context.Context, movementID, teamID string, sub ResponseSubmission) (Movement, error) {
	var resp Movement
	err := c.do(ctx, http.MethodPut, responsePath(movementID, teamID), sub, &resp)
	return resp, err
}

// UploadAttachment uploads one file for a team's response.
func (c *Client) UploadAttachment(ctx context.Context, movementID, teamID, name string, r io.Reader) (Attachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return Attachment{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return Attachment{}, err
	}
	if err := mw.Close(); err != nil {
		return Attachment{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, responsePath(movementID, teamID)+"/attachments", &buf)
	if err != nil {
		return Attachment{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var resp Attachment
	err = c.send(req, &resp)
	return resp, err
}

// RunReminders triggers a reminder scan; today may be empty.
func (c *Client) RunReminders(ctx context.Context, today string, dryRun bool) (ReminderReport, error) {
	body := map[string]any{"dry_run": dryRun}
	if today != "" {
		body["today"] = today
	}
	var resp ReminderReport
	err := c.do(ctx, http.MethodPost, "v0/reminders/run", body, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func responsePath(movementID, teamID string) string {
	return fmt.Sprintf("v0/movements/%s/responses/%s", url.PathEscape(movementID), url.PathEscape(teamID))
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := c.newRequest(ctx, method, endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
