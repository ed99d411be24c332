package infra

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPTrigger devolve um gatilho que faz self-ping no endpoint de sweep do
// próprio servidor. Qualquer status fora de 2xx conta como falha do ciclo.
func HTTPTrigger(client *http.Client, url string) func(ctx context.Context) error {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("sweep trigger %s: status %d", url, resp.StatusCode)
		}
		return nil
	}
}
