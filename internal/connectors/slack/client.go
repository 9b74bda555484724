package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

// DefaultBaseURL is the Slack Web API root.
const DefaultBaseURL = "https://slack.com/api"

// historyRate throttles conversation fetches. Slack's tier-3 methods
// allow roughly 50 calls/minute; stay safely under it.
const historyRate = rate.Limit(0.8)

// apiError represents a Slack API-level failure ("ok": false).
type apiError struct {
	Code string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("slack: API error: %s", e.Code)
}

// Unwrap maps well-known Slack error codes onto the domain taxonomy.
func (e *apiError) Unwrap() error {
	switch e.Code {
	case "not_authed", "invalid_auth", "account_inactive", "token_revoked", "missing_scope":
		return domain.ErrAuthFailed
	case "ratelimited", "rate_limited":
		return domain.ErrRateLimited
	default:
		return nil
	}
}

// client is a minimal Slack Web API client covering the conversation
// read methods the connector needs.
type client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
}

func newClient(token, baseURL string, timeout time.Duration) *client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		token:      token,
		limiter:    rate.NewLimiter(historyRate, 1),
	}
}

// call performs one GET against a Web API method and decodes the
// envelope into out, which must embed responseEnvelope.
func (c *client) call(ctx context.Context, method string, params url.Values, out envelope) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+"/"+method+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w", method, domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack: %s returned status %d: %s", method, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !out.ok() {
		return fmt.Errorf("%s: %w", method, &apiError{Code: out.errorCode()})
	}
	return nil
}

// envelope is the common Slack response envelope.
type envelope interface {
	ok() bool
	errorCode() string
}

type responseEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (r *responseEnvelope) ok() bool          { return r.OK }
func (r *responseEnvelope) errorCode() string { return r.Error }

// apiMessage is the wire shape of a conversation message.
type apiMessage struct {
	Type       string `json:"type"`
	TS         string `json:"ts"`
	ThreadTS   string `json:"thread_ts"`
	User       string `json:"user"`
	Text       string `json:"text"`
	ReplyCount int    `json:"reply_count"`
	Subtype    string `json:"subtype"`
}

// parseTS converts a Slack "seconds.micros" timestamp.
func parseTS(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// formatTS converts a time back to Slack's timestamp format.
func formatTS(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}
