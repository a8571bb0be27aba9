package cloud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ErrRemote wraps non-2xx answers from Google APIs.
type ErrRemote struct {
	Status int
	Body   string
}

func (e *ErrRemote) Error() string {
	return fmt.Sprintf("google api: status %d: %s", e.Status, e.Body)
}

// NewHTTPClient returns a client that sends token as an OAuth bearer credential.
func NewHTTPClient(ctx context.Context, token string, timeout time.Duration) *http.Client {
	c := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c.Timeout = timeout
	return c
}

func do(ctx context.Context, hc *http.Client, method, url, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ErrRemote{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return b, nil
}
