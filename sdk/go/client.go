package petscreensdk

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

// Client is a minimal pre-entry TB screening HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 20 * time.Second,
	}
}

// DateValue is a split date as entered on the forms.
type DateValue struct {
	Day   string `json:"day,omitempty"`
	Month string `json:"month,omitempty"`
	Year  string `json:"year,omitempty"`
}

// StepStatus is the lifecycle slice of a saved step response.
type StepStatus struct {
	Status string `json:"status"`
}

// SampleCollection is one sample's stored collection facts.
type SampleCollection struct {
	DateOfSample        DateValue `json:"dateOfSample"`
	CollectionMethod    string    `json:"collectionMethod"`
	SubmittedToDatabase bool      `json:"submittedToDatabase"`
}

// SampleResult is one stored smear or culture entry.
type SampleResult struct {
	Result              string `json:"result"`
	SubmittedToDatabase bool   `json:"submittedToDatabase"`
}

// SputumSample is one of the up-to-three specimens.
type SputumSample struct {
	Collection      SampleCollection `json:"collection"`
	SmearResults    SampleResult     `json:"smearResults"`
	CultureResults  SampleResult     `json:"cultureResults"`
	LastUpdatedDate DateValue        `json:"lastUpdatedDate"`
}

// SputumState is the sputum aggregate (partial).
type SputumState struct {
	Status  string       `json:"status"`
	Version *int64       `json:"version,omitempty"`
	Sample1 SputumSample `json:"sample1"`
	Sample2 SputumSample `json:"sample2"`
	Sample3 SputumSample `json:"sample3"`
}

// Application is the API application model (partial).
type Application struct {
	ID               string      `json:"id"`
	ClinicID         string      `json:"clinicId"`
	CreatedAt        string      `json:"created_at"`
	UpdatedAt        string      `json:"updated_at"`
	Applicant        StepStatus  `json:"applicant"`
	Travel           StepStatus  `json:"travel"`
	MedicalScreening StepStatus  `json:"medicalScreening"`
	ChestXray        StepStatus  `json:"chestXray"`
	SputumDecision   StepStatus  `json:"sputumDecision"`
	Sputum           SputumState `json:"sputum"`
	TbCertificate    StepStatus  `json:"tbCertificate"`
}

// ApplicationSummary is the list view of an application.
type ApplicationSummary struct {
	ID        string `json:"id"`
	ClinicID  string `json:"clinicId"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// SampleCollectionEntry is one sample of the collection form.
type SampleCollectionEntry struct {
	DateOfSample     DateValue `json:"dateOfSample"`
	CollectionMethod string    `json:"collectionMethod,omitempty"`
}

// SampleResultsEntry is one sample of the results form.
type SampleResultsEntry struct {
	SmearResult   string `json:"smearResult,omitempty"`
	CultureResult string `json:"cultureResult,omitempty"`
}

// SubmitOutcome reports what a sputum submission persisted.
type SubmitOutcome struct {
	Version   int64               `json:"version"`
	Status    string              `json:"status"`
	NoOp      bool                `json:"noOp"`
	Submitted map[string][]string `json:"submitted"`
	Next      string              `json:"next"`
}

// TrackerRow is one task of the progress tracker.
type TrackerRow struct {
	Description string `json:"description"`
	Status      string `json:"status"`
	Label       string `json:"label"`
	Href        string `json:"href"`
	Blocked     bool   `json:"blocked"`
}

// Event represents a log entry.
type Event struct {
	ID            int64  `json:"id"`
	TS            string `json:"ts"`
	Type          string `json:"type"`
	ApplicationID string `json:"application_id"`
	Step          string `json:"step"`
	ActorID       string `json:"actor_id"`
	Payload       string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Consent is a stored cookie consent decision.
type Consent struct {
	ActorID  string `json:"actor_id"`
	Decision string `json:"decision"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health checks the service.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "v0/health", nil, nil)
}

// CreateApplication starts a new screening application. An empty id lets
// the service generate one.
func (c *Client) CreateApplication(ctx context.Context, id string) (Application, error) {
	body := map[string]any{}
	if id != "" {
		body["id"] = id
	}
	var resp Application
	err := c.do(ctx, http.MethodPost, "v0/applications", body, &resp)
	return resp, err
}

// GetApplication fetches one application with all its step data.
func (c *Client) GetApplication(ctx context.Context, id string) (Application, error) {
	var resp Application
	err := c.do(ctx, http.MethodGet, c.appPath(id, ""), nil, &resp)
	return resp, err
}

// ListApplications returns recent applications.
func (c *Client) ListApplications(ctx context.Context, limit int) ([]ApplicationSummary, error) {
	endpoint := "v0/applications"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []ApplicationSummary
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SaveApplicant saves the visa applicant details step. Fields follow the
// applicant schema; validation failures surface as an APIError with
// status 422.
func (c *Client) SaveApplicant(ctx context.Context, applicationID string, fields any) (StepStatus, error) {
	return c.saveStep(ctx, http.MethodPut, applicationID, "applicant", fields)
}

// SaveTravel saves the UK travel information step.
func (c *Client) SaveTravel(ctx context.Context, applicationID string, fields any) (StepStatus, error) {
	return c.saveStep(ctx, http.MethodPut, applicationID, "travel", fields)
}

// SaveMedicalScreening saves the medical history and TB symptoms step.
func (c *Client) SaveMedicalScreening(ctx context.Context, applicationID string, fields any) (StepStatus, error) {
	return c.saveStep(ctx, http.MethodPost, applicationID, "medical-screening", fields)
}

// SaveChestXray saves the chest X-ray and radiological outcome step.
func (c *Client) SaveChestXray(ctx context.Context, applicationID string, fields any) (StepStatus, error) {
	return c.saveStep(ctx, http.MethodPost, applicationID, "chest-xray", fields)
}

// SaveSputumDecision saves the sputum decision step.
func (c *Client) SaveSputumDecision(ctx context.Context, applicationID string, fields any) (StepStatus, error) {
	return c.saveStep(ctx, http.MethodPost, applicationID, "sputum-decision", fields)
}

// SaveTbCertificate saves the TB certificate outcome step.
func (c *Client) SaveTbCertificate(ctx context.Context, applicationID string, fields any) (StepStatus, error) {
	return c.saveStep(ctx, http.MethodPost, applicationID, "tb-certificate", fields)
}

// SaveSputumCollection stages the collection form. Intent is either
// "save-progress" or "save-and-continue-to-results"; the returned string
// is the client route to show next.
func (c *Client) SaveSputumCollection(ctx context.Context, applicationID, intent string, samples [3]SampleCollectionEntry) (string, error) {
	body := map[string]any{
		"intent":  intent,
		"sample1": samples[0],
		"sample2": samples[1],
		"sample3": samples[2],
	}
	var resp struct {
		Next string `json:"next"`
	}
	err := c.do(ctx, http.MethodPost, c.appPath(applicationID, "sputum/collection"), body, &resp)
	return resp.Next, err
}

// SaveSputumResults stages the results form.
func (c *Client) SaveSputumResults(ctx context.Context, applicationID string, samples [3]SampleResultsEntry) (string, error) {
	body := map[string]any{
		"sample1": samples[0],
		"sample2": samples[1],
		"sample3": samples[2],
	}
	var resp struct {
		Next string `json:"next"`
	}
	err := c.do(ctx, http.MethodPost, c.appPath(applicationID, "sputum/results"), body, &resp)
	return resp.Next, err
}

// SubmitSputum persists everything staged since the last submission.
// Version is the token from the last submission, nil for the first.
func (c *Client) SubmitSputum(ctx context.Context, applicationID string, version *int64) (SubmitOutcome, error) {
	body := map[string]any{}
	if version != nil {
		body["version"] = *version
	}
	var resp SubmitOutcome
	err := c.do(ctx, http.MethodPut, c.appPath(applicationID, "sputum"), body, &resp)
	return resp, err
}

// Tracker returns the progress tracker rows for an application.
func (c *Client) Tracker(ctx context.Context, applicationID string) ([]TrackerRow, error) {
	var resp []TrackerRow
	err := c.do(ctx, http.MethodGet, c.appPath(applicationID, "tracker"), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events"
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
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// PutConsent records the caller's cookie consent decision.
func (c *Client) PutConsent(ctx context.Context, decision string) (Consent, error) {
	var resp Consent
	err := c.do(ctx, http.MethodPut, "v0/consent", map[string]string{"decision": decision}, &resp)
	return resp, err
}

// GetConsent reads the caller's stored consent decision.
func (c *Client) GetConsent(ctx context.Context) (Consent, error) {
	var resp Consent
	err := c.do(ctx, http.MethodGet, "v0/consent", nil, &resp)
	return resp, err
}

func (c *Client) saveStep(ctx context.Context, method, applicationID, step string, fields any) (StepStatus, error) {
	var resp StepStatus
	err := c.do(ctx, method, c.appPath(applicationID, step), fields, &resp)
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
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
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

func (c *Client) appPath(applicationID, p string) string {
	endpoint := fmt.Sprintf("v0/applications/%s", url.PathEscape(applicationID))
	if p != "" {
		endpoint = endpoint + "/" + strings.TrimLeft(p, "/")
	}
	return endpoint
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
