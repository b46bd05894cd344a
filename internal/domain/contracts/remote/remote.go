// Package remote implements the external workbook-download collaborator:
// fetching the primary contracts workbook from the configured file provider
// by opaque file ID.
package remote

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"
)

const defaultBaseURL = "https://drive.google.com/uc?export=download&id="

// maxWorkbookBytes caps a remote download at the same size as a direct
// upload.
const maxWorkbookBytes = 64 << 20

// Client downloads a workbook by file ID over HTTP.
type Client struct {
	http    *http.Client
	baseURL string
	fileID  string
}

// NewClient builds a Client for fileID. baseURL may be empty to use the
// default provider endpoint.
func NewClient(fileID, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:    &http.Client{Timeout: 2 * time.Minute},
		baseURL: baseURL,
		fileID:  fileID,
	}
}

// FetchWorkbook downloads the configured workbook, returning a filename
// (from Content-Disposition when the provider sends one) and the raw bytes.
func (c *Client) FetchWorkbook(ctx context.Context) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.fileID, nil)
	if err != nil {
		return "", nil, fmt.Errorf("building workbook request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("downloading workbook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("workbook download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxWorkbookBytes+1))
	if err != nil {
		return "", nil, fmt.Errorf("reading workbook body: %w", err)
	}
	if len(data) > maxWorkbookBytes {
		return "", nil, fmt.Errorf("workbook exceeds %d bytes", maxWorkbookBytes)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("workbook download was empty")
	}

	return c.filename(resp), data, nil
}

func (c *Client) filename(resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}
	return c.fileID + ".xlsx"
}
