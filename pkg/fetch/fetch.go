// Package fetch downloads files and JSON documents over HTTP.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ngld/henge/pkg/console"
	"github.com/ngld/henge/pkg/expected"
)

// StatusError is returned for any response other than 200 OK
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Request to %s failed with status code %d", e.URL, e.StatusCode)
}

// Expected marks status errors as user errors
func (e *StatusError) Expected() bool {
	return true
}

// Client wraps an http.Client
type Client struct {
	HTTP *http.Client
}

// New returns a client with the default download timeout
func New() *Client {
	return &Client{
		HTTP: &http.Client{
			Timeout: time.Minute * 30,
		},
	}
}

// Get starts a GET request. The caller has to close the body of the returned response.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, expected.Errorf("Invalid URL %s: %s", url, err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to start download for %s", url)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	return resp, nil
}

// Download streams the body of url into dest and returns the number of bytes written
func (c *Client) Download(ctx context.Context, url string, dest io.Writer) (int64, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	bar := console.NewProgressBar(ctx, resp.ContentLength, "     download")
	n, err := io.Copy(io.MultiWriter(dest, bar), resp.Body)
	bar.Finish()
	if err != nil {
		return n, eris.Wrapf(err, "Failed during download of %s", url)
	}

	return n, nil
}

// GetJSON fetches url and decodes the JSON body into v
func (c *Client) GetJSON(ctx context.Context, url string, v interface{}) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	err = json.NewDecoder(resp.Body).Decode(v)
	if err != nil {
		return expected.Errorf("Failed to parse JSON document %s: %s", url, err)
	}

	return nil
}
