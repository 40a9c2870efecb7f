package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVendor simulates the threads/runs API: runs walk through the
// given status sequence, one step per poll.
type fakeVendor struct {
	t        *testing.T
	statuses []string
	lastErr  *RunError
	reply    []map[string]interface{}

	mu        sync.Mutex
	polls     int
	messages  []string
	cancelled bool
}

func (f *fakeVendor) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/threads", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"id": "thread_1"})
	})
	mux.HandleFunc("POST /v1/threads/thread_1/messages", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.messages = append(f.messages, body.Role+": "+body.Content)
		f.mu.Unlock()
		writeJSON(w, map[string]string{"id": "msg_1"})
	})
	mux.HandleFunc("POST /v1/threads/thread_1/runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"id": "run_1", "status": RunQueued})
	})
	mux.HandleFunc("GET /v1/threads/thread_1/runs/run_1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		i := f.polls
		if i >= len(f.statuses) {
			i = len(f.statuses) - 1
		}
		f.polls++
		f.mu.Unlock()
		writeJSON(w, Run{ID: "run_1", Status: f.statuses[i], LastError: f.lastErr})
	})
	mux.HandleFunc("POST /v1/threads/thread_1/runs/run_1/cancel", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
		writeJSON(w, map[string]string{"id": "run_1", "status": "cancelling"})
	})
	mux.HandleFunc("GET /v1/threads/thread_1/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"data": f.reply})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func assistantReply(texts ...string) []map[string]interface{} {
	blocks := make([]map[string]interface{}, 0, len(texts))
	for _, t := range texts {
		blocks = append(blocks, map[string]interface{}{
			"type": "text",
			"text": map[string]string{"value": t},
		})
	}
	return []map[string]interface{}{
		{"id": "msg_2", "role": "assistant", "content": blocks},
	}
}

func newTestOrchestrator(t *testing.T, f *fakeVendor) (*Orchestrator, *httptest.Server) {
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	o := NewOrchestrator(NewClient(srv.URL, "test-key", 5*time.Second), "asst_1")
	o.PollInterval = time.Millisecond
	return o, srv
}

func TestGenerateReplyPollsToCompletion(t *testing.T) {
	f := &fakeVendor{
		t:        t,
		statuses: []string{RunQueued, RunInProgress, RunInProgress, RunCompleted},
		reply:    assistantReply("Hello ", "there.[3:2*source.txt]"),
	}
	o, _ := newTestOrchestrator(t, f)

	history := []Turn{
		{Role: "user", Content: "hi"},
		{Role: "ai", Content: "hello!"},
	}
	got, err := o.GenerateReply(context.Background(), "what now?", history)
	require.NoError(t, err)

	// Text blocks concatenated, citation artifacts removed.
	assert.Equal(t, "Hello there.", got)
	assert.GreaterOrEqual(t, f.polls, 4)

	// History replayed into the fresh thread before the new message,
	// with non-user roles mapped for the vendor API.
	require.Len(t, f.messages, 3)
	assert.Equal(t, "user: hi", f.messages[0])
	assert.Equal(t, "assistant: hello!", f.messages[1])
	assert.Equal(t, "user: what now?", f.messages[2])
}

func TestGenerateReplyRunFailed(t *testing.T) {
	f := &fakeVendor{
		t:        t,
		statuses: []string{RunInProgress, RunFailed},
		lastErr:  &RunError{Code: "rate_limit_exceeded", Message: "slow down"},
	}
	o, _ := newTestOrchestrator(t, f)

	_, err := o.GenerateReply(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit_exceeded")
}

func TestGenerateReplyRequiresActionCancelsRun(t *testing.T) {
	f := &fakeVendor{
		t:        t,
		statuses: []string{RunQueued, RunRequiresAction},
	}
	o, _ := newTestOrchestrator(t, f)

	_, err := o.GenerateReply(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.True(t, f.cancelled, "pending run should be cancelled")
}

func TestGenerateReplyTimesOut(t *testing.T) {
	f := &fakeVendor{
		t:        t,
		statuses: []string{RunInProgress},
	}
	o, _ := newTestOrchestrator(t, f)
	o.RunTimeout = 5 * time.Millisecond

	_, err := o.GenerateReply(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestGenerateReplyUnconfigured(t *testing.T) {
	o := NewOrchestrator(NewClient("", "", time.Second), "")
	_, err := o.GenerateReply(context.Background(), "hi", nil)
	require.Error(t, err)
}

func TestStripCitations(t *testing.T) {
	cases := map[string]string{
		"plain text":               "plain text",
		"cited[1:0*doc.txt] text":  "cited text",
		"a[2:3+notes.md]b[4:5*x]c": "abc",
	}
	for in, want := range cases {
		assert.Equal(t, want, stripCitations(in))
	}
}
