// ABOUTME: Model administration: list across shape variants, pull, remove
// ABOUTME: Unions known list-response shapes by model identifier

package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
)

// listRoutes are the path variants local inference servers expose for
// model listing. Responses are unioned by identifier; a route that is
// missing or unreachable is skipped, but at least one must answer.
var listRoutes = []string{"/api/tags", "/v1/models", "/api/models"}

// PullProgress is one progress update from a streaming model pull.
type PullProgress struct {
	Status    string
	Completed int64
	Total     int64
}

// Percent returns the completion percentage, or -1 when the total is
// unknown.
func (p PullProgress) Percent() float64 {
	if p.Total <= 0 {
		return -1
	}
	return float64(p.Completed) / float64(p.Total) * 100
}

// ListModels returns the identifiers of the models available on the
// endpoint, sorted and de-duplicated across the known route variants.
// Every route answering 200 must parse as a known shape; an unknown shape
// is a malformed-response failure rather than a silent skip.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	answered := false
	var lastErr error

	for _, route := range listRoutes {
		names, err := c.listOne(ctx, c.url(route))
		if err != nil {
			if IsKind(err, KindCancelled) {
				return nil, err
			}
			lastErr = err
			continue
		}
		answered = true
		for _, n := range names {
			if n != "" {
				seen[n] = true
			}
		}
	}

	if !answered {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, &Error{Kind: KindConnection, Endpoint: c.endpoint.BaseURL}
	}

	models := make([]string, 0, len(seen))
	for n := range seen {
		models = append(models, n)
	}
	sort.Strings(models)
	return models, nil
}

// listOne fetches one list route and adapts whichever shape came back.
func (c *Client) listOne(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, malformed(c.endpoint.BaseURL, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(c.endpoint.BaseURL, ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, malformed(c.endpoint.BaseURL, fmt.Errorf("status %d from %s", resp.StatusCode, url))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(c.endpoint.BaseURL, ctx, err)
	}
	return adaptModelList(body)
}

// adaptModelList decodes any of the known list shapes into identifiers.
// Each shape has its own adapter; an unrecognized payload maps to a typed
// malformed failure, never a silent coercion.
func adaptModelList(body []byte) ([]string, error) {
	// Shape 1: Ollama tags, {"models": [{"name": ...}, ...]}
	var tags struct {
		Models []struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &tags); err == nil && len(tags.Models) > 0 {
		names := make([]string, 0, len(tags.Models))
		for _, m := range tags.Models {
			if m.Name != "" {
				names = append(names, m.Name)
			} else if m.Model != "" {
				names = append(names, m.Model)
			}
		}
		if len(names) > 0 {
			return names, nil
		}
	}

	// Shape 2: OpenAI, {"data": [{"id": ...}, ...]}
	var openai struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &openai); err == nil && len(openai.Data) > 0 {
		names := make([]string, 0, len(openai.Data))
		for _, m := range openai.Data {
			if m.ID != "" {
				names = append(names, m.ID)
			}
		}
		if len(names) > 0 {
			return names, nil
		}
	}

	// Shape 3: bare array, ["model-a", "model-b"]
	var plain []string
	if err := json.Unmarshal(body, &plain); err == nil && len(plain) > 0 {
		return plain, nil
	}

	// Empty lists are fine in any shape; anything else is malformed.
	trimmed := bytes.TrimSpace(body)
	if bytes.Equal(trimmed, []byte("[]")) ||
		bytes.Equal(trimmed, []byte(`{"models":[]}`)) ||
		bytes.Equal(trimmed, []byte(`{"data":[]}`)) {
		return nil, nil
	}
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(body, &generic); err == nil {
		if raw, ok := generic["models"]; ok && bytes.Equal(bytes.TrimSpace(raw), []byte("[]")) {
			return nil, nil
		}
		if raw, ok := generic["data"]; ok && bytes.Equal(bytes.TrimSpace(raw), []byte("[]")) {
			return nil, nil
		}
	}
	return nil, malformed("", fmt.Errorf("unrecognized model list shape: %s", snippet(body)))
}

// Pull downloads a model onto the endpoint, reporting NDJSON progress
// lines through the callback. progress may be nil.
func (c *Client) Pull(ctx context.Context, model string, progress func(PullProgress)) error {
	payload, err := json.Marshal(map[string]any{"name": model, "stream": true})
	if err != nil {
		return malformed(c.endpoint.BaseURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/pull"), bytes.NewReader(payload))
	if err != nil {
		return malformed(c.endpoint.BaseURL, err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Pulls run far longer than a completion; rely on ctx, not the
	// client-level timeout.
	httpClient := &http.Client{Transport: c.http.Transport}
	resp, err := httpClient.Do(req)
	if err != nil {
		return classify(c.endpoint.BaseURL, ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return malformed(c.endpoint.BaseURL, fmt.Errorf("pull status %d: %s", resp.StatusCode, snippet(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var update struct {
			Status    string `json:"status"`
			Completed int64  `json:"completed"`
			Total     int64  `json:"total"`
			Error     string `json:"error"`
		}
		if err := json.Unmarshal(line, &update); err != nil {
			return malformed(c.endpoint.BaseURL, fmt.Errorf("decoding pull progress: %w", err))
		}
		if update.Error != "" {
			return malformed(c.endpoint.BaseURL, fmt.Errorf("pull failed: %s", update.Error))
		}
		if progress != nil {
			progress(PullProgress{Status: update.Status, Completed: update.Completed, Total: update.Total})
		}
	}
	if err := scanner.Err(); err != nil {
		return classify(c.endpoint.BaseURL, ctx, err)
	}
	return nil
}

// Remove deletes a model from the endpoint.
func (c *Client) Remove(ctx context.Context, model string) error {
	payload, err := json.Marshal(map[string]string{"name": model})
	if err != nil {
		return malformed(c.endpoint.BaseURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url("/api/delete"), bytes.NewReader(payload))
	if err != nil {
		return malformed(c.endpoint.BaseURL, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(c.endpoint.BaseURL, ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return malformed(c.endpoint.BaseURL, fmt.Errorf("remove status %d: %s", resp.StatusCode, snippet(body)))
	}
	return nil
}
