package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lotas/tabgruppen/internal/applog"
)

// ControlResponse is the JSON body of every /control/ reply.
type ControlResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Connected bool   `json:"connected"`
}

// ControlHandler serves the local control endpoints the CLI uses after it
// edits the rule set:
//
//	POST /control/reorganize
//	POST /control/dissolve?name=<rule>
//	GET  /control/status
//
// connected reports whether an extension is attached; it may be nil.
func (d *Daemon) ControlHandler(connected func() bool) http.Handler {
	isConnected := func() bool { return connected != nil && connected() }
	mux := http.NewServeMux()

	mux.HandleFunc("/control/status", func(w http.ResponseWriter, r *http.Request) {
		writeControl(w, http.StatusOK, ControlResponse{OK: true, Connected: isConnected()})
	})

	mux.HandleFunc("/control/reorganize", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeControl(w, http.StatusMethodNotAllowed, ControlResponse{Error: "POST required"})
			return
		}
		applog.Info("control.reorganize")
		d.reply(w, d.Reorganize(r.Context()), isConnected())
	})

	mux.HandleFunc("/control/dissolve", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeControl(w, http.StatusMethodNotAllowed, ControlResponse{Error: "POST required"})
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			writeControl(w, http.StatusBadRequest, ControlResponse{Error: "name required"})
			return
		}
		applog.Info("control.dissolve", "name", name)
		d.reply(w, d.Dissolve(r.Context(), name), isConnected())
	})

	return mux
}

func (d *Daemon) reply(w http.ResponseWriter, err error, connected bool) {
	switch {
	case err == nil:
		writeControl(w, http.StatusOK, ControlResponse{OK: true, Connected: connected})
	case errors.Is(err, ErrBusy):
		writeControl(w, http.StatusServiceUnavailable, ControlResponse{Error: err.Error(), Connected: connected})
	default:
		applog.Error("control.job", err)
		writeControl(w, http.StatusInternalServerError, ControlResponse{Error: err.Error(), Connected: connected})
	}
}

func writeControl(w http.ResponseWriter, status int, resp ControlResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Client calls a running daemon's control endpoints.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a Client for the daemon listening on port.
func NewClient(port int) *Client {
	return NewClientURL(fmt.Sprintf("http://127.0.0.1:%d", port))
}

// NewClientURL returns a Client for the daemon at base, e.g. an httptest
// server URL.
func NewClientURL(base string) *Client {
	return &Client{base: base, http: &http.Client{Timeout: 2 * time.Minute}}
}

// Status reports whether the daemon is reachable and has an extension
// attached.
func (c *Client) Status(ctx context.Context) (ControlResponse, error) {
	return c.do(ctx, http.MethodGet, "/control/status")
}

// Reorganize asks the daemon for a full pass and waits for it to finish.
func (c *Client) Reorganize(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/control/reorganize")
	return err
}

// Dissolve asks the daemon to empty and remove every group titled name.
func (c *Client) Dissolve(ctx context.Context, name string) error {
	_, err := c.do(ctx, http.MethodPost, "/control/dissolve?name="+url.QueryEscape(name))
	return err
}

func (c *Client) do(ctx context.Context, method, path string) (ControlResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return ControlResponse{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ControlResponse{}, fmt.Errorf("contact daemon: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ControlResponse{}, fmt.Errorf("read daemon reply: %w", err)
	}
	var cr ControlResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return ControlResponse{}, fmt.Errorf("daemon reply: HTTP %d", resp.StatusCode)
	}
	if !cr.OK {
		return cr, fmt.Errorf("daemon: %s", cr.Error)
	}
	return cr, nil
}
