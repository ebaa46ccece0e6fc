package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// callWebhook renders and sends the action's HTTP request. GET requests carry
// the payload as query parameters; other methods send it as a JSON body.
func (ex *Executor) callWebhook(ctx context.Context, s *Strategy, a Action, trigger TriggerContext) (map[string]any, error) {
	if strings.TrimSpace(a.WebhookURL) == "" {
		return nil, fmt.Errorf("%w: call_webhook action has no URL", ErrConfiguration)
	}

	method := strings.ToUpper(strings.TrimSpace(a.WebhookMethod))
	if method == "" {
		method = http.MethodPost
	}
	if _, ok := webhookMethods[method]; !ok {
		return nil, fmt.Errorf("%w: unsupported webhook method %q", ErrConfiguration, a.WebhookMethod)
	}

	rc := ex.renderContext(ctx, s, trigger, nil)
	target := Render(a.WebhookURL, rc)

	headers, err := renderJSONObject(a.WebhookHeadersTemplate, rc)
	if err != nil {
		return nil, fmt.Errorf("headers: %w", err)
	}
	payload, err := renderJSONObject(a.WebhookPayloadTemplate, rc)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}

	req, err := buildWebhookRequest(ctx, method, target, headers, payload)
	if err != nil {
		return nil, err
	}

	details := map[string]any{
		"url":    target,
		"method": method,
	}

	resp, err := ex.client.Do(req)
	if err != nil {
		return details, fmt.Errorf("%w: webhook request failed: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	// A character is at most utf8.UTFMax bytes.
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, int64(ex.responseLimit*utf8.UTFMax)))
	details["status_code"] = resp.StatusCode
	details["response"] = truncateRunes(string(body), ex.responseLimit)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return details, fmt.Errorf("%w: webhook returned HTTP %d", ErrTransport, resp.StatusCode)
	}
	if readErr != nil {
		ex.logger.Debug("webhook response read incomplete", "url", target, "error", readErr)
	}
	return details, nil
}

func buildWebhookRequest(ctx context.Context, method, target string, headers, payload map[string]any) (*http.Request, error) {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid webhook URL %q", ErrConfiguration, target)
	}

	var body io.Reader
	if method == http.MethodGet {
		if len(payload) > 0 {
			q := u.Query()
			for k, v := range payload {
				q.Set(k, stringify(v))
			}
			u.RawQuery = q.Encode()
		}
	} else if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding payload: %v", ErrRender, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrConfiguration, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, stringify(v))
	}
	return req, nil
}

// truncateRunes returns at most n characters of s.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
