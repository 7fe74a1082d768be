package incidents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"av-ops-console/shared/config"
	"av-ops-console/shared/issues"
	"av-ops-console/shared/metricsx"
)

var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrCircuitOpen      = errors.New("ticketing circuit open")
)

// Client talks to the ticketing system. Calls retry on 5xx and
// transport errors; a run of failures opens a circuit breaker so a
// ticketing outage cannot stall alert processing.
type Client struct {
	baseURL  string
	token    string
	caller   string
	retryMax int
	http     *http.Client
	breaker  *circuitBreaker
}

func New(cfg config.Config) (*Client, error) {
	if cfg.TicketingURL == "" {
		return nil, errors.New("TICKETING_URL is required")
	}
	timeout := time.Duration(cfg.TicketingTimeoutMS) * time.Millisecond
	return &Client{
		baseURL:  cfg.TicketingURL,
		token:    cfg.TicketingToken,
		caller:   cfg.TicketingCaller,
		retryMax: cfg.TicketingRetryMax,
		http:     &http.Client{Timeout: timeout},
		breaker:  newCircuitBreaker(5, 30*time.Second),
	}, nil
}

type incidentRecord struct {
	SysID            string `json:"sys_id"`
	Number           string `json:"number"`
	ShortDescription string `json:"short_description"`
}

type createRequest struct {
	ShortDescription string `json:"short_description"`
	CallerID         string `json:"caller_id"`
	Room             string `json:"u_room,omitempty"`
}

// CreateIncident opens a new incident and returns its identifiers.
func (c *Client) CreateIncident(ctx context.Context, shortDescription string, roomID string) (issues.Incident, error) {
	body, err := json.Marshal(createRequest{
		ShortDescription: shortDescription,
		CallerID:         c.caller,
		Room:             roomID,
	})
	if err != nil {
		return issues.Incident{}, err
	}

	var out struct {
		Result incidentRecord `json:"result"`
	}
	err = c.do(ctx, http.MethodPost, "/api/now/table/incident", nil, body, &out)
	if err != nil {
		return issues.Incident{}, err
	}
	return issues.Incident{
		ID:               out.Result.SysID,
		Name:             out.Result.Number,
		ShortDescription: out.Result.ShortDescription,
	}, nil
}

// LookupIncident resolves an incident number to its record.
func (c *Client) LookupIncident(ctx context.Context, number string) (issues.Incident, error) {
	params := url.Values{
		"sysparm_query": []string{"number=" + number},
		"sysparm_limit": []string{"1"},
	}
	var out struct {
		Result []incidentRecord `json:"result"`
	}
	err := c.do(ctx, http.MethodGet, "/api/now/table/incident", params, nil, &out)
	if err != nil {
		return issues.Incident{}, err
	}
	if len(out.Result) == 0 {
		return issues.Incident{}, ErrIncidentNotFound
	}
	return issues.Incident{
		ID:               out.Result[0].SysID,
		Name:             out.Result[0].Number,
		ShortDescription: out.Result[0].ShortDescription,
	}, nil
}

// AddWorkNote appends a work note to an incident.
func (c *Client) AddWorkNote(ctx context.Context, incidentID string, note string) error {
	body, err := json.Marshal(map[string]string{"work_notes": note})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPatch, "/api/now/table/incident/"+url.PathEscape(incidentID), nil, body, nil)
}

func (c *Client) do(ctx context.Context, method string, path string, params url.Values, body []byte, out any) error {
	if c.breaker.Open() {
		metricsx.IncTicketingFailure()
		return ErrCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		} else {
			reader = bytes.NewReader(nil)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if len(params) > 0 {
			req.URL.RawQuery = params.Encode()
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.breaker.Fail()
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = errors.New("ticketing service error")
			c.breaker.Fail()
			continue
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			c.breaker.Success()
			return ErrIncidentNotFound
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			metricsx.IncTicketingFailure()
			return errors.New("ticketing request failed")
		}
		if out != nil {
			err = json.NewDecoder(resp.Body).Decode(out)
		}
		resp.Body.Close()
		if err != nil {
			c.breaker.Fail()
			metricsx.IncTicketingFailure()
			return err
		}
		c.breaker.Success()
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("ticketing request failed")
	}
	metricsx.IncTicketingFailure()
	return lastErr
}

type circuitBreaker struct {
	mu            sync.Mutex
	failures      int
	openUntil     time.Time
	threshold     int
	resetDuration time.Duration
}

func newCircuitBreaker(threshold int, reset time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, resetDuration: reset}
}

func (b *circuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return false
	}
	if time.Now().After(b.openUntil) {
		b.openUntil = time.Time{}
		b.failures = 0
		return false
	}
	return true
}

func (b *circuitBreaker) Fail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = time.Now().Add(b.resetDuration)
	}
}

func (b *circuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}
