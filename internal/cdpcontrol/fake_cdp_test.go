package cdpcontrol

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type fakeTarget struct {
	ID       string
	Type     string
	Title    string
	URL      string
	WindowID int64
	// Eval is returned as the string value of Runtime.evaluate.
	Eval string
}

// fakeBrowser serves the CDP HTTP discovery endpoints and a browser
// websocket that answers the commands the client issues.
type fakeBrowser struct {
	t       *testing.T
	srv     *httptest.Server
	targets []fakeTarget

	mu       sync.Mutex
	methods  []string
	created  []string
	detached []string
}

func newFakeBrowser(t *testing.T, targets []fakeTarget) *fakeBrowser {
	t.Helper()
	f := &fakeBrowser{t: t, targets: targets}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/devtools/browser/fake"
		_ = json.NewEncoder(w).Encode(map[string]string{"webSocketDebuggerUrl": wsURL})
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		entries := make([]map[string]string, 0, len(f.targets))
		for _, tg := range f.targets {
			entries = append(entries, map[string]string{"id": tg.ID, "type": tg.Type, "title": tg.Title, "url": tg.URL})
		}
		_ = json.NewEncoder(w).Encode(entries)
	})
	mux.HandleFunc("/devtools/browser/fake", f.serveWS)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBrowser) target(id string) (fakeTarget, bool) {
	for _, tg := range f.targets {
		if tg.ID == id {
			return tg, true
		}
	}
	return fakeTarget{}, false
}

func (f *fakeBrowser) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		f.t.Errorf("upgrade: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var req struct {
			ID        int64           `json:"id"`
			Method    string          `json:"method"`
			SessionID string          `json:"sessionId"`
			Params    json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			f.t.Errorf("bad request frame: %v", err)
			return
		}
		var params struct {
			TargetID  string `json:"targetId"`
			SessionID string `json:"sessionId"`
			URL       string `json:"url"`
		}
		_ = json.Unmarshal(req.Params, &params)

		f.mu.Lock()
		f.methods = append(f.methods, req.Method)
		f.mu.Unlock()

		resp := map[string]any{"id": req.ID}
		switch req.Method {
		case "Browser.getWindowForTarget":
			tg, _ := f.target(params.TargetID)
			resp["result"] = map[string]any{"windowId": tg.WindowID}
		case "Target.attachToTarget":
			if _, ok := f.target(params.TargetID); !ok {
				resp["error"] = map[string]any{"code": -32602, "message": "No target with given id found"}
				break
			}
			resp["result"] = map[string]any{"sessionId": "S-" + params.TargetID}
		case "Target.detachFromTarget":
			f.mu.Lock()
			f.detached = append(f.detached, params.SessionID)
			f.mu.Unlock()
			resp["result"] = map[string]any{}
		case "Target.createTarget":
			f.mu.Lock()
			f.created = append(f.created, params.URL)
			f.mu.Unlock()
			resp["result"] = map[string]any{"targetId": "NEW"}
		case "Runtime.evaluate":
			tg, _ := f.target(strings.TrimPrefix(req.SessionID, "S-"))
			resp["sessionId"] = req.SessionID
			resp["result"] = map[string]any{"result": map[string]any{"type": "string", "value": tg.Eval}}
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "unknown method " + req.Method}
		}
		out, _ := json.Marshal(resp)
		if err := wsutil.WriteServerText(conn, out); err != nil {
			return
		}
	}
}
