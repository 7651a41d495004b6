package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// defaultServerURL is used when neither the flag nor DATAFLOCK_SERVER is
// set.
const defaultServerURL = "http://localhost:8998"

const clientTimeout = 30 * time.Second

// ErrServer wraps error payloads returned by the dataflock server.
var ErrServer = errors.New("server error")

// client calls the dataflock HTTP API.
type client struct {
	baseURL string
	http    *http.Client
}

// addServerFlag registers the shared --server flag and returns the bound
// variable.
func addServerFlag(cmd *cobra.Command) *string {
	serverURL := defaultServerURL
	if env := os.Getenv("DATAFLOCK_SERVER"); env != "" {
		serverURL = env
	}

	cmd.PersistentFlags().StringVarP(&serverURL, "server", "s", serverURL, "dataflock server URL")

	return &serverURL
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: clientTimeout},
	}
}

// do issues one JSON request. A non-nil out receives the decoded
// response body; error payloads become ErrServer.
func (c *client) do(cmd *cobra.Command, method, path string, body, out any) error {
	var reqBody io.Reader

	if body != nil {
		data, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return fmt.Errorf("encode request: %w", marshalErr)
		}

		reqBody = bytes.NewReader(data)
	}

	req, reqErr := http.NewRequestWithContext(cmd.Context(), method, c.baseURL+path, reqBody)
	if reqErr != nil {
		return fmt.Errorf("build request: %w", reqErr)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, doErr := c.http.Do(req)
	if doErr != nil {
		return fmt.Errorf("request %s %s: %w", method, path, doErr)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("read response: %w", readErr)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var payload struct {
			Error string `json:"error"`
		}

		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			return fmt.Errorf("%w: %s", ErrServer, payload.Error)
		}

		return fmt.Errorf("%w: %s: %s", ErrServer, resp.Status, bytes.TrimSpace(data))
	}

	if out == nil || len(data) == 0 {
		return nil
	}

	decodeErr := json.Unmarshal(data, out)
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}

	return nil
}
