package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/warfair1337/wn-dockctl/internal/model"
)

type WebSocketClient struct {
	mu sync.Mutex

	logger       *slog.Logger
	url          string
	token        string
	hostID       string
	tlsConfig    *tls.Config
	writeTimeout time.Duration
	pingInterval time.Duration
	conn         *websocket.Conn
	pingCancel   context.CancelFunc
}

func NewWebSocketClient(url, token, hostID string, tlsCfg *tls.Config, writeTimeout, pingInterval time.Duration, logger *slog.Logger) *WebSocketClient {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 10 * time.Second
	}
	return &WebSocketClient{
		logger:       logger,
		url:          url,
		token:        token,
		hostID:       hostID,
		tlsConfig:    tlsCfg,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

func (c *WebSocketClient) SendSnapshot(ctx context.Context, s model.Snapshot) error {
	payload, err := EncodeFrame(NewSnapshotFrame(c.hostID, s))
	if err != nil {
		return fmt.Errorf("encode snapshot frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureConnLocked(ctx); err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := c.conn.Write(wctx, websocket.MessageText, payload); err != nil {
		c.logger.Warn("websocket write failed, reconnecting", "error", err)
		c.dropConnLocked(websocket.StatusInternalError, "reconnect")
		if err2 := c.ensureConnLocked(ctx); err2 != nil {
			return err2
		}
		if err2 := c.conn.Write(wctx, websocket.MessageText, payload); err2 != nil {
			return fmt.Errorf("write snapshot frame retry: %w", err2)
		}
	}
	return nil
}

func (c *WebSocketClient) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.dropConnLocked(websocket.StatusNormalClosure, "shutdown")
}

func (c *WebSocketClient) dropConnLocked(code websocket.StatusCode, reason string) error {
	if c.pingCancel != nil {
		c.pingCancel()
		c.pingCancel = nil
	}
	err := c.conn.Close(code, reason)
	c.conn = nil
	return err
}

func (c *WebSocketClient) ensureConnLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	opt := &websocket.DialOptions{HTTPHeader: h}
	if c.tlsConfig != nil {
		opt.HTTPClient = &http.Client{Transport: &http.Transport{TLSClientConfig: c.tlsConfig}}
	}
	conn, _, err := websocket.Dial(ctx, c.url, opt)
	if err != nil {
		return fmt.Errorf("websocket dial %s: %w", c.url, err)
	}
	c.conn = conn
	c.startPingLoopLocked()
	c.logger.Info("websocket stream connected", "url", c.url)
	return nil
}

// startPingLoopLocked discards inbound messages so pongs are processed, then
// pings on a fixed interval until the connection is dropped.
func (c *WebSocketClient) startPingLoopLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	c.pingCancel = cancel
	readCtx := c.conn.CloseRead(ctx)
	go func(conn *websocket.Conn, interval time.Duration) {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-readCtx.Done():
				return
			case <-t.C:
				pingCtx, pingCancel := context.WithTimeout(readCtx, 3*time.Second)
				if err := conn.Ping(pingCtx); err != nil {
					c.logger.Debug("websocket ping failed", "error", err)
				}
				pingCancel()
			}
		}
	}(c.conn, c.pingInterval)
}
