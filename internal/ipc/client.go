package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// Client is a synchronous IPC client. Calls are serialized over one
// connection.
type Client struct {
	mu        sync.Mutex
	conn      net.Conn
	requestID uint32
	timeout   time.Duration
}

// Dial connects to the daemon socket.
func Dial(socketPath string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", socketPath, err)
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// Call sends one request and waits for its response. request may be nil
// for parameterless operations. An MsgError response is surfaced as an
// error.
func (c *Client) Call(msgType MessageType, request any) (*Message, error) {
	var payload []byte
	if request != nil {
		var err error
		if payload, err = json.Marshal(request); err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestID++
	msg := NewMessage(msgType, c.requestID, payload)

	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	if err := msg.Write(c.conn); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	resp, err := ReadMessage(c.conn)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.Header.RequestID != msg.Header.RequestID {
		return nil, fmt.Errorf("response id %d does not match request id %d",
			resp.Header.RequestID, msg.Header.RequestID)
	}

	if resp.Header.Type == MsgError {
		var e ErrorResponse
		if err := resp.Decode(&e); err != nil {
			return nil, fmt.Errorf("daemon returned an unreadable error: %w", err)
		}
		return nil, fmt.Errorf("daemon error %d: %s", e.Code, e.Message)
	}
	return resp, nil
}

// Ping checks daemon liveness.
func (c *Client) Ping() error {
	resp, err := c.Call(MsgPing, nil)
	if err != nil {
		return err
	}
	if resp.Header.Type != MsgPong {
		return fmt.Errorf("unexpected response type 0x%04x", resp.Header.Type)
	}
	return nil
}

// Status fetches the daemon's runtime state.
func (c *Client) Status() (*StatusResponse, error) {
	resp, err := c.Call(MsgStatus, nil)
	if err != nil {
		return nil, err
	}
	var out StatusResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &out, nil
}

// CheckAll forces an immediate permission re-check.
func (c *Client) CheckAll() (*CheckAllResponse, error) {
	resp, err := c.Call(MsgCheckAll, nil)
	if err != nil {
		return nil, err
	}
	var out CheckAllResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode check result: %w", err)
	}
	return &out, nil
}

// ExportConsent fetches the sealed consent export document.
func (c *Client) ExportConsent() ([]byte, error) {
	resp, err := c.Call(MsgExportConsent, nil)
	if err != nil {
		return nil, err
	}
	var out ExportConsentResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	return out.Export, nil
}

// ClearConsent wipes the consent log.
func (c *Client) ClearConsent() error {
	_, err := c.Call(MsgClearConsent, nil)
	return err
}

// CleanupProofs deletes proofs past their retention window.
func (c *Client) CleanupProofs() (int64, error) {
	resp, err := c.Call(MsgCleanupProofs, nil)
	if err != nil {
		return 0, err
	}
	var out CleanupProofsResponse
	if err := resp.Decode(&out); err != nil {
		return 0, fmt.Errorf("decode cleanup result: %w", err)
	}
	return out.Deleted, nil
}

// Theme fetches the current theme selection.
func (c *Client) Theme() (*ThemeResponse, error) {
	resp, err := c.Call(MsgThemeGet, nil)
	if err != nil {
		return nil, err
	}
	var out ThemeResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode theme: %w", err)
	}
	return &out, nil
}

// SetTheme changes the theme selection and/or accent color.
func (c *Client) SetTheme(theme, accent string) (*ThemeResponse, error) {
	resp, err := c.Call(MsgThemeSet, ThemeSetRequest{Theme: theme, Accent: accent})
	if err != nil {
		return nil, err
	}
	var out ThemeResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode theme: %w", err)
	}
	return &out, nil
}

// Foreground tells the daemon the app entered the foreground.
func (c *Client) Foreground() error {
	_, err := c.Call(MsgForeground, nil)
	return err
}

// Background tells the daemon the app left the foreground.
func (c *Client) Background() error {
	_, err := c.Call(MsgBackground, nil)
	return err
}

// RefreshHealth re-fetches today's health metrics.
func (c *Client) RefreshHealth() (*HealthRefreshResponse, error) {
	resp, err := c.Call(MsgHealthRefresh, nil)
	if err != nil {
		return nil, err
	}
	var out HealthRefreshResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode health snapshot: %w", err)
	}
	return &out, nil
}
