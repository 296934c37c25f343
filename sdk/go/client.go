package sitewalksdk

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
)

// Client is a minimal Sitewalk HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Milestone represents the API milestone model.
type Milestone struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Order       int             `json:"order"`
	IsActive    bool            `json:"is_active"`
	Items       []ChecklistItem `json:"items,omitempty"`
}

// ChecklistItem represents one inspectable requirement.
type ChecklistItem struct {
	ID              string `json:"id"`
	MilestoneID     string `json:"milestone_id"`
	Title           string `json:"title"`
	Order           int    `json:"order"`
	IsRequired      bool   `json:"is_required"`
	IsPhotoRequired bool   `json:"is_photo_required"`
}

// Response is one recorded outcome inside an inspection.
type Response struct {
	ChecklistItemID string  `json:"checklist_item_id"`
	Result          string  `json:"result"`
	Remark          string  `json:"remark,omitempty"`
	MediaID         *string `json:"media_id,omitempty"`
}

// Inspection represents the API inspection model.
type Inspection struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	MilestoneID   string     `json:"milestone_id"`
	MilestoneName string     `json:"milestone_name,omitempty"`
	EngineerID    string     `json:"engineer_id"`
	Status        string     `json:"status"`
	ReviewerID    *string    `json:"reviewer_id,omitempty"`
	CreatedAt     string     `json:"created_at"`
	SubmittedAt   *string    `json:"submitted_at,omitempty"`
	ReviewedAt    *string    `json:"reviewed_at,omitempty"`
	Responses     []Response `json:"responses,omitempty"`
}

// InspectionSummary is the compact list-view projection.
type InspectionSummary struct {
	ID            string  `json:"id"`
	MilestoneID   string  `json:"milestone_id"`
	MilestoneName string  `json:"milestone_name"`
	EngineerID    string  `json:"engineer_id"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at"`
	SubmittedAt   *string `json:"submitted_at,omitempty"`
	PassCount     int     `json:"pass_count"`
	FailCount     int     `json:"fail_count"`
	NACount       int     `json:"na_count"`
}

// InspectionPage wraps paginated summary listings.
type InspectionPage struct {
	Items      []InspectionSummary `json:"items"`
	HasMore    bool                `json:"has_more"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListMilestones returns the project's milestones with checklist items.
func (c *Client) ListMilestones(ctx context.Context) ([]Milestone, error) {
	var resp []Milestone
	err := c.do(ctx, http.MethodGet, c.projectPath("milestones"), nil, &resp)
	return resp, err
}

// CreateInspection records responses against a milestone. status is draft
// or submitted.
func (c *Client) CreateInspection(ctx context.Context, milestoneID, status string, responses []Response) (Inspection, error) {
	body := map[string]any{
		"milestone_id": milestoneID,
		"status":       status,
		"responses":    responses,
	}
	var resp Inspection
	err := c.do(ctx, http.MethodPost, c.projectPath("inspections"), body, &resp)
	return resp, err
}

// SubmitInspection advances a draft inspection to submitted.
func (c *Client) SubmitInspection(ctx context.Context, id string) (Inspection, error) {
	var resp Inspection
	endpoint := fmt.Sprintf("v1/inspections/%s/submit", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ReviewInspection marks a submitted inspection reviewed.
func (c *Client) ReviewInspection(ctx context.Context, id string) (Inspection, error) {
	var resp Inspection
	endpoint := fmt.Sprintf("v1/inspections/%s/review", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// GetInspection fetches one inspection by id.
func (c *Client) GetInspection(ctx context.Context, id string) (Inspection, error) {
	var resp Inspection
	endpoint := fmt.Sprintf("v1/inspections/%s", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Inspections returns all inspections visible to the caller.
func (c *Client) Inspections(ctx context.Context) ([]Inspection, error) {
	var resp []Inspection
	err := c.do(ctx, http.MethodGet, c.projectPath("inspections"), nil, &resp)
	return resp, err
}

// InspectionsPage returns one cursor page of summaries.
func (c *Client) InspectionsPage(ctx context.Context, limit int, cursor string) (InspectionPage, error) {
	endpoint := c.projectPath("inspections/summary")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp InspectionPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v1/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
