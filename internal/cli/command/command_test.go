package command

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
	"github.com/sigmesh/sigmesh-go/internal/server/wire"
)

// fakeServer records requests and answers every route with a canned
// success envelope.
type fakeServer struct {
	ts       *httptest.Server
	requests []recordedRequest
	payloads map[string]any
}

type recordedRequest struct {
	Method string
	Path   string
	Body   []byte
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{payloads: make(map[string]any)}
	f.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := new(bytes.Buffer)
		body.ReadFrom(r.Body)
		f.requests = append(f.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   body.Bytes(),
		})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wire.Success(f.payloads[r.URL.Path]))
	}))
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fakeServer) last(t *testing.T) recordedRequest {
	t.Helper()
	if len(f.requests) == 0 {
		t.Fatal("no requests recorded")
	}
	return f.requests[len(f.requests)-1]
}

// runApp executes the CLI with stdout captured.
func runApp(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	app := App()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = strings.NewReader(stdin)
	baseArgs := []string{"sigmesh-cli", "--config", filepath.Join(t.TempDir(), "cli.yaml")}
	err := app.Run(append(baseArgs, args...))
	return out.String(), err
}

func TestCommunityCreate(t *testing.T) {
	f := newFakeServer(t)
	f.payloads["/v1/communities"] = &wire.CreateCommunityResponse{TeamID: "acme"}

	out, err := runApp(t, "",
		"--server", f.ts.URL, "--transport", "tr-1", "--output", "json",
		"community", "create", "acme", "--user", "alice")
	if err != nil {
		t.Fatalf("run error = %v\noutput: %s", err, out)
	}

	req := f.last(t)
	if req.Method != http.MethodPost || req.Path != "/v1/communities" {
		t.Errorf("request = %s %s, want POST /v1/communities", req.Method, req.Path)
	}

	var body wire.CreateCommunityRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("request body unmarshal error = %v", err)
	}
	if body.TeamID != "acme" || body.UserID != "alice" {
		t.Errorf("request body = %+v", body)
	}
	if !strings.Contains(out, "acme") {
		t.Errorf("output missing team id: %s", out)
	}
}

func TestCommunityConnectAndDisconnect(t *testing.T) {
	f := newFakeServer(t)
	f.payloads["/v1/communities/acme/connections"] = &wire.ConnectionResponse{
		ConnectionID: "smcn-1",
		TeamID:       "acme",
		UserID:       "bob",
		Status:       "joined",
	}

	out, err := runApp(t, "",
		"--server", f.ts.URL, "--transport", "tr-bob", "--output", "json",
		"community", "connect", "acme", "--user", "bob")
	if err != nil {
		t.Fatalf("connect error = %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "tr-bob") {
		t.Errorf("connect output should name the transport: %s", out)
	}

	_, err = runApp(t, "",
		"--server", f.ts.URL, "--transport", "tr-bob",
		"community", "disconnect", "acme", "--user", "bob")
	if err != nil {
		t.Fatalf("disconnect error = %v", err)
	}
	req := f.last(t)
	if req.Method != http.MethodDelete || req.Path != "/v1/communities/acme/connections/bob" {
		t.Errorf("request = %s %s, want DELETE connection path", req.Method, req.Path)
	}
}

func TestEntrySubmitSignsBody(t *testing.T) {
	f := newFakeServer(t)
	f.payloads["/v1/entries"] = &wire.SubmitEntryResponse{ContentHash: "x", ReceivedAt: 1}

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	keyFile := filepath.Join(t.TempDir(), "alice.key")
	encoded := base64.StdEncoding.EncodeToString(priv)
	if err := os.WriteFile(keyFile, []byte(encoded), 0600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	out, err := runApp(t, "",
		"--server", f.ts.URL, "--transport", "tr-1", "--output", "json",
		"entry", "submit", "hello world",
		"--team", "acme", "--user", "alice", "--key-file", keyFile)
	if err != nil {
		t.Fatalf("run error = %v\noutput: %s", err, out)
	}

	var body wire.SubmitEntryRequest
	if err := json.Unmarshal(f.last(t).Body, &body); err != nil {
		t.Fatalf("request body unmarshal error = %v", err)
	}
	if body.ContentHash != domain.ContentHash(body.Entry) {
		t.Error("content hash does not match submitted entry")
	}

	// The entry must verify against the claimed author.
	var env struct {
		Author    string `json:"author"`
		PublicKey string `json:"public_key"`
		Signature string `json:"signature"`
		Body      string `json:"body"`
	}
	if err := json.Unmarshal(body.Entry, &env); err != nil {
		t.Fatalf("entry is not a signed envelope: %v", err)
	}
	if env.Author != "alice" {
		t.Errorf("author = %q, want alice", env.Author)
	}
	decoded, _ := base64.StdEncoding.DecodeString(env.Body)
	if string(decoded) != "hello world" {
		t.Errorf("body = %q, want hello world", decoded)
	}
}

func TestEntrySubmitSeedKey(t *testing.T) {
	f := newFakeServer(t)
	f.payloads["/v1/entries"] = &wire.SubmitEntryResponse{}

	seed := make([]byte, ed25519.SeedSize)
	keyFile := filepath.Join(t.TempDir(), "seed.key")
	if err := os.WriteFile(keyFile, []byte(base64.StdEncoding.EncodeToString(seed)), 0600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	_, err := runApp(t, "payload via stdin",
		"--server", f.ts.URL, "--transport", "tr-1",
		"entry", "submit",
		"--team", "acme", "--user", "alice", "--key-file", keyFile)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
}

func TestEntryPullFollowsCursor(t *testing.T) {
	pages := []*wire.PullEntriesResponse{
		{Entries: [][]byte{[]byte("a")}, Cursor: "c1", HasNextPage: true},
		{Entries: [][]byte{[]byte("b")}, HasNextPage: false},
	}
	call := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wire.PullEntriesRequest
		json.NewDecoder(r.Body).Decode(&req)
		if call == 1 && req.Cursor != "c1" {
			t.Errorf("second pull cursor = %q, want c1", req.Cursor)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wire.Success(pages[call]))
		call++
	}))
	defer ts.Close()

	_, err := runApp(t, "",
		"--server", ts.URL, "--transport", "tr-1", "--output", "json",
		"entry", "pull", "--team", "acme", "--user", "alice", "--all")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if call != 2 {
		t.Errorf("pull calls = %d, want 2", call)
	}
}

func TestMembershipSendFromStdin(t *testing.T) {
	f := newFakeServer(t)

	out, err := runApp(t, `{"op":"add","user_id":"carol"}`,
		"--server", f.ts.URL, "--transport", "tr-1",
		"membership", "send", "--team", "acme", "--user", "alice")
	if err != nil {
		t.Fatalf("run error = %v\noutput: %s", err, out)
	}

	var body wire.MembershipMessageRequest
	if err := json.Unmarshal(f.last(t).Body, &body); err != nil {
		t.Fatalf("request body unmarshal error = %v", err)
	}
	if body.TeamID != "acme" || !strings.Contains(string(body.Message), "carol") {
		t.Errorf("request body = %+v", body)
	}
	if !strings.Contains(out, "delivered") {
		t.Errorf("output = %q, want delivered", out)
	}
}

func TestSystemHealth(t *testing.T) {
	f := newFakeServer(t)
	f.payloads["/health"] = map[string]any{"status": "ok"}

	out, err := runApp(t, "",
		"--server", f.ts.URL, "--transport", "tr-1", "--output", "json",
		"system", "health")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if !strings.Contains(out, "ok") {
		t.Errorf("output = %q, want status ok", out)
	}
}

func TestServerErrorSurfacesCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(&wire.Envelope{
			Status: wire.StatusNotFound,
			Reason: "SM-COMM-4040",
		})
	}))
	defer ts.Close()

	_, err := runApp(t, "",
		"--server", ts.URL, "--transport", "tr-1",
		"community", "status", "ghost")
	if err == nil || !strings.Contains(err.Error(), "SM-COMM-4040") {
		t.Errorf("error = %v, want SM-COMM-4040 surfaced", err)
	}
}
