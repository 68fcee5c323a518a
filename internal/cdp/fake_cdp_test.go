package cdp

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

type fakePage struct {
	ID       string
	Type     string
	Title    string
	URL      string
	WindowID int64
	HTML     string
}

// fakeChromium answers the subset of CDP that chromedp needs to connect,
// attach to a page and evaluate in it. Targets created by the client are
// added to the target list in helperWindow.
type fakeChromium struct {
	t            *testing.T
	srv          *httptest.Server
	helperWindow int64

	mu       sync.Mutex
	pages    []fakePage
	methods  []string
	closed   []string
	detached []string
	created  []string
}

func newFakeChromium(t *testing.T, helperWindow int64, pages ...fakePage) *fakeChromium {
	t.Helper()
	f := &fakeChromium{t: t, helperWindow: helperWindow, pages: pages}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/devtools/browser/fake"
		_ = json.NewEncoder(w).Encode(map[string]string{"webSocketDebuggerUrl": wsURL})
	})
	mux.HandleFunc("/devtools/browser/fake", f.serveWS)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeChromium) page(id string) (fakePage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pages {
		if p.ID == id {
			return p, true
		}
	}
	return fakePage{}, false
}

func (f *fakeChromium) seen(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.methods {
		if m == method {
			n++
		}
	}
	return n
}

func (f *fakeChromium) closedTargets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

func (f *fakeChromium) detachedSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.detached...)
}

func (f *fakeChromium) createdURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

func (f *fakeChromium) serveWS(w http.ResponseWriter, r *http.Request) {
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
			TargetID   string `json:"targetId"`
			SessionID  string `json:"sessionId"`
			URL        string `json:"url"`
			Expression string `json:"expression"`
		}
		_ = json.Unmarshal(req.Params, &params)

		f.mu.Lock()
		f.methods = append(f.methods, req.Method)
		f.mu.Unlock()

		resp := map[string]any{"id": req.ID}
		if req.SessionID != "" {
			resp["sessionId"] = req.SessionID
		}
		var event map[string]any
		switch req.Method {
		case "Target.createTarget":
			f.mu.Lock()
			id := "HELPER"
			if len(f.created) > 0 {
				id = "NEW-" + params.URL
			}
			f.created = append(f.created, params.URL)
			f.pages = append([]fakePage{{ID: id, Type: "page", URL: params.URL, WindowID: f.helperWindow}}, f.pages...)
			f.mu.Unlock()
			resp["result"] = map[string]any{"targetId": id}
		case "Target.attachToTarget":
			if _, ok := f.page(params.TargetID); !ok {
				resp["error"] = map[string]any{"code": -32602, "message": "No target with given id found"}
				break
			}
			resp["result"] = map[string]any{"sessionId": "S-" + params.TargetID}
		case "Target.detachFromTarget":
			f.mu.Lock()
			f.detached = append(f.detached, params.SessionID)
			f.mu.Unlock()
			resp["result"] = map[string]any{}
			event = map[string]any{
				"method": "Target.detachedFromTarget",
				"params": map[string]any{"sessionId": params.SessionID, "targetId": strings.TrimPrefix(params.SessionID, "S-")},
			}
		case "Target.closeTarget":
			f.mu.Lock()
			f.closed = append(f.closed, params.TargetID)
			f.mu.Unlock()
			resp["result"] = map[string]any{"success": true}
		case "Target.getTargets":
			f.mu.Lock()
			infos := make([]map[string]any, 0, len(f.pages))
			for _, p := range f.pages {
				infos = append(infos, map[string]any{
					"targetId": p.ID, "type": p.Type, "title": p.Title, "url": p.URL,
					"attached": false, "canAccessOpener": false,
				})
			}
			f.mu.Unlock()
			resp["result"] = map[string]any{"targetInfos": infos}
		case "Browser.getWindowForTarget":
			p, _ := f.page(params.TargetID)
			resp["result"] = map[string]any{"windowId": p.WindowID, "bounds": map[string]any{}}
		case "Runtime.evaluate":
			if params.Expression == "self" {
				resp["result"] = map[string]any{"result": map[string]any{"type": "object", "className": "Window"}}
				break
			}
			p, _ := f.page(strings.TrimPrefix(req.SessionID, "S-"))
			resp["result"] = map[string]any{"result": map[string]any{
				"type":  "object",
				"value": map[string]string{"url": p.URL, "title": p.Title, "html": p.HTML},
			}}
		case "Page.getFrameTree":
			p, _ := f.page(strings.TrimPrefix(req.SessionID, "S-"))
			resp["result"] = map[string]any{"frameTree": map[string]any{
				"frame": map[string]any{"id": "F-" + p.ID, "loaderId": "L-" + p.ID, "url": p.URL, "securityOrigin": "", "mimeType": "text/html"},
			}}
		case "DOM.getDocument":
			resp["result"] = map[string]any{"root": map[string]any{
				"nodeId": 1, "backendNodeId": 1, "nodeType": 9, "nodeName": "#document", "localName": "", "nodeValue": "",
			}}
		default:
			resp["result"] = map[string]any{}
		}
		out, _ := json.Marshal(resp)
		if err := wsutil.WriteServerText(conn, out); err != nil {
			return
		}
		if event != nil {
			out, _ := json.Marshal(event)
			if err := wsutil.WriteServerText(conn, out); err != nil {
				return
			}
		}
	}
}
