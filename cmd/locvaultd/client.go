package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func serverFlag(fs *flag.FlagSet) *string {
	def := os.Getenv("LOCVAULT_SERVER")
	if def == "" {
		def = "http://localhost:10000"
	}
	return fs.String("server", def, "Server base URL")
}

func queryEscape(s string) string {
	return url.QueryEscape(s)
}

// client talks to a running locvaultd server
type client struct {
	base  string
	token string // Sent as a bearer token when set
	http  *http.Client
}

func newClient(base string) *client {
	return &client{
		base:  strings.TrimRight(base, "/"),
		token: os.Getenv("LOCVAULT_ADMIN_TOKEN"),
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) post(path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(http.MethodPost, path, bytes.NewReader(data), out)
}

func (c *client) get(path string, out interface{}) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *client) do(method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
