package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alfredjeanlab/notify/internal/model"
)

const pongWait = 60 * time.Second

// Watcher receives live pushes from the /ws/message endpoint.
type Watcher struct {
	url    string
	token  string
	dialer *websocket.Dialer
}

// NewWatcher creates a watcher for the server at baseURL (http or https)
// authenticating with a receiver JWT.
func NewWatcher(baseURL, token string) (*Watcher, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws/message"
	return &Watcher{
		url:    u.String(),
		token:  token,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// Watch connects and calls fn for every pushed message until ctx is done or
// the connection drops. It returns nil when ctx ends the watch.
func (w *Watcher) Watch(ctx context.Context, fn func(model.MessageView)) error {
	header := http.Header{"Authorization": {"Bearer " + w.token}}
	conn, resp, err := w.dialer.DialContext(ctx, w.url, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return &APIError{StatusCode: resp.StatusCode, Message: "websocket handshake rejected"}
		}
		return fmt.Errorf("dialing %s: %w", w.url, err)
	}
	defer conn.Close()

	// Server pings keep the connection alive; answer them and refresh the deadline.
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
	})

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading push: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var view model.MessageView
		if err := json.Unmarshal(data, &view); err != nil {
			continue
		}
		fn(view)
	}
}
