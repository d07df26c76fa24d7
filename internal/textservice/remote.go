package textservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/neboloop/focusrelay/internal/httputil"
)

var remoteClient = &http.Client{Timeout: 10 * time.Second}

// RemotePush asks the service at baseURL to broadcast text. Empty text
// re-sends the pending note.
func RemotePush(ctx context.Context, baseURL, text string) (PushResult, error) {
	var res PushResult
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/push", strings.NewReader(text))
	if err != nil {
		return res, err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	err = doJSON(req, &res)
	return res, err
}

// RemoteStatus fetches the service status.
func RemoteStatus(ctx context.Context, baseURL string) (Status, error) {
	var st Status
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/status", nil)
	if err != nil {
		return st, err
	}
	err = doJSON(req, &st)
	return st, err
}

func doJSON(req *http.Request, out any) error {
	resp, err := remoteClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if err := httputil.ResponseError(resp); err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
