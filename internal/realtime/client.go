package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

type DialConfig struct {
	// BaseURL is the realtime endpoint, e.g. wss://api.openai.com/v1/realtime.
	BaseURL string
	Model   string
	APIKey  string
}

// Dial opens the model-leg websocket with the credential supplied for this
// call. The caller owns the returned connection.
func Dial(ctx context.Context, cfg DialConfig) (*websocket.Conn, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("model url: %w", err)
	}
	q := u.Query()
	q.Set("model", cfg.Model)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cfg.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial model websocket: %w", err)
	}
	return conn, nil
}
