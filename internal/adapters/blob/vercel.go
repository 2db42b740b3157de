package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/taskmaster/scheduler/internal/domain/entities"
	"github.com/taskmaster/scheduler/internal/ports"
)

const vercelAPIVersion = "7"

// VercelGateway talks to a hosted blob store over its HTTP API.
type VercelGateway struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewVercelGateway creates a gateway for the API rooted at baseURL.
// A nil client falls back to one with a 30 second timeout.
func NewVercelGateway(baseURL, token string, client *http.Client) *VercelGateway {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &VercelGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

type vercelBlob struct {
	URL         string    `json:"url"`
	Pathname    string    `json:"pathname"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

func (b vercelBlob) object() ports.BlobObject {
	return ports.BlobObject{
		URL:         b.URL,
		Pathname:    b.Pathname,
		ContentType: b.ContentType,
		Size:        b.Size,
		UploadedAt:  b.UploadedAt,
	}
}

type vercelListResponse struct {
	Blobs   []vercelBlob `json:"blobs"`
	Cursor  string       `json:"cursor"`
	HasMore bool         `json:"hasMore"`
}

type vercelErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// List implements ports.BlobGateway.
func (g *VercelGateway) List(ctx context.Context, opts ports.ListOptions) ([]ports.BlobObject, error) {
	q := url.Values{}
	if opts.Prefix != "" {
		q.Set("prefix", opts.Prefix)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	var objects []ports.BlobObject
	cursor := ""
	for {
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		req, err := g.newRequest(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}

		var page vercelListResponse
		if err := g.do(req, &page); err != nil {
			return nil, fmt.Errorf("list blobs: %w", err)
		}
		for _, b := range page.Blobs {
			objects = append(objects, b.object())
		}

		// A limited listing is a single page.
		if opts.Limit > 0 || !page.HasMore || page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].UploadedAt.After(objects[j].UploadedAt)
	})
	if opts.Limit > 0 && len(objects) > opts.Limit {
		objects = objects[:opts.Limit]
	}
	return objects, nil
}

// Fetch implements ports.BlobGateway. Public objects need no credentials.
func (g *VercelGateway) Fetch(ctx context.Context, blobURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, blobURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("fetch %s: %w", blobURL, entities.ErrBlobNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch blob data: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read blob body: %w", err)
	}
	return body, nil
}

// Put implements ports.BlobGateway.
func (g *VercelGateway) Put(ctx context.Context, pathname string, body []byte, opts ports.PutOptions) (*ports.BlobObject, error) {
	req, err := g.newRequest(ctx, http.MethodPut, g.baseURL+"/"+url.PathEscape(pathname), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-add-random-suffix", "0")
	if opts.ContentType != "" {
		req.Header.Set("x-content-type", opts.ContentType)
	}
	if opts.Access != "" {
		req.Header.Set("x-access", opts.Access)
	}

	var created vercelBlob
	if err := g.do(req, &created); err != nil {
		return nil, fmt.Errorf("put blob: %w", err)
	}
	if created.Pathname == "" {
		created.Pathname = pathname
	}
	if created.Size == 0 {
		created.Size = int64(len(body))
	}
	obj := created.object()
	return &obj, nil
}

// Delete implements ports.BlobGateway.
func (g *VercelGateway) Delete(ctx context.Context, blobURL string) error {
	payload, err := json.Marshal(map[string][]string{"urls": {blobURL}})
	if err != nil {
		return fmt.Errorf("encode delete request: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodPost, g.baseURL+"/delete", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := g.do(req, nil); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (g *VercelGateway) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	if g.token == "" {
		return nil, entities.ErrMissingToken
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("x-api-version", vercelAPIVersion)
	return req, nil
}

// do sends req and decodes a JSON response into out when out is not nil.
func (g *VercelGateway) do(req *http.Request, out interface{}) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr vercelErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("blob api %s: %s (status %d)", apiErr.Error.Code, apiErr.Error.Message, resp.StatusCode)
		}
		return fmt.Errorf("blob api returned status %d", resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode blob api response: %w", err)
	}
	return nil
}
