package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// apiClient is the thin HTTP client the non-serve commands share.
type apiClient struct {
	baseURL string
	client  *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{
		baseURL: serverURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) get(path string, out interface{}) error {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	return c.decode(resp, out)
}

func (c *apiClient) post(path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.client.Post(c.baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	return c.decode(resp, out)
}

func (c *apiClient) decode(resp *http.Response, out interface{}) error {
	if resp.StatusCode >= http.StatusBadRequest {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// printJSON pretty-prints a response structure to stdout.
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
