package beakerwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HubConfig carries the hub endpoint and credentials. It is passed in
// explicitly at construction time; nothing in this package reads global
// configuration.
type HubConfig struct {
	URL      string   `yaml:"url"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Timeout  Duration `yaml:"timeout"` // per-request; 30s when zero
}

// HubClient talks to a Beaker hub over HTTP. It implements Client.
type HubClient struct {
	base     *url.URL
	username string
	password string
	http     *http.Client
}

func NewHubClient(cfg HubConfig) (*HubClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("hub URL is required")
	}
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse hub URL %q: %w", cfg.URL, err)
	}
	timeout := time.Duration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HubClient{
		base:     base,
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// SubmitJob uploads the job XML to the hub and returns the assigned job
// handle. Any rejection or transport failure is a *SubmissionError.
func (c *HubClient) SubmitJob(ctx context.Context, jobXML string) (*Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("jobs"), strings.NewReader(jobXML))
	if err != nil {
		return nil, &SubmissionError{Err: err}
	}
	req.Header.Set("Content-Type", "application/xml")
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &SubmissionError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &SubmissionError{Err: fmt.Errorf("hub returned %s: %s", resp.Status, readBody(resp.Body))}
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &SubmissionError{Err: fmt.Errorf("decode submission response: %w", err)}
	}
	if body.ID == "" {
		return nil, &SubmissionError{Err: fmt.Errorf("hub accepted the job but returned no id")}
	}
	return &Job{ID: body.ID}, nil
}

// QueryStatus fetches the job's current status. Failures are *QueryError
// and are treated as transient by the watchdog.
func (c *HubClient) QueryStatus(ctx context.Context, job *Job) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("jobs", job.ID), nil)
	if err != nil {
		return "", &QueryError{JobID: job.ID, Err: err}
	}
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &QueryError{JobID: job.ID, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &QueryError{JobID: job.ID, Err: fmt.Errorf("hub returned %s", resp.Status)}
	}

	var body struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &QueryError{JobID: job.ID, Err: fmt.Errorf("decode status response: %w", err)}
	}
	status, err := ParseStatus(body.Status)
	if err != nil {
		return "", &QueryError{JobID: job.ID, Err: err}
	}
	return status, nil
}

// Ping verifies the hub is reachable and the credentials are accepted.
func (c *HubClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("users", "+self"), nil)
	if err != nil {
		return err
	}
	c.auth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cannot connect to %s: %w", c.base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cannot connect to %s as %s: hub returned %s", c.base, c.username, resp.Status)
	}
	return nil
}

func (c *HubClient) auth(req *http.Request) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

func (c *HubClient) endpoint(parts ...string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(parts, "/")
	return u.String()
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
