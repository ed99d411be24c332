package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTranslateURL é o endpoint público usado pelos clientes "gtx".
const DefaultTranslateURL = "https://translate.googleapis.com/translate_a/single"

// HTTPTranslator implementa domain.Translator falando o formato
// translate_a/single: um array JSON cujo primeiro elemento é a lista de
// segmentos [traduzido, original, ...].
type HTTPTranslator struct {
	client  *http.Client
	baseURL string
}

func NewHTTPTranslator(baseURL string, client *http.Client) *HTTPTranslator {
	if baseURL == "" {
		baseURL = DefaultTranslateURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPTranslator{client: client, baseURL: baseURL}
}

func (t *HTTPTranslator) Translate(ctx context.Context, text, lang string) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", lang)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("translate %s: status %d: %s", lang, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("translate %s: decoding response: %w", lang, err)
	}
	return joinSegments(payload)
}

func joinSegments(payload []json.RawMessage) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("translate: empty response")
	}
	var segments [][]any
	if err := json.Unmarshal(payload[0], &segments); err != nil {
		return "", fmt.Errorf("translate: unexpected segments: %w", err)
	}

	var b strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		if s, ok := seg[0].(string); ok {
			b.WriteString(s)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("translate: no translated text in response")
	}
	return b.String(), nil
}
