package runpod

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paulgrammer/comfyrelay/internal/workflow"
)

func fakeEndpoint(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "ep123", "secret-token")
}

func minimalRequest() *workflow.Request {
	return &workflow.Request{
		Workflow: workflow.Template{
			"1": {ClassType: "KSampler", Inputs: map[string]any{"seed": 1}},
		},
	}
}

func TestClientRunSync(t *testing.T) {
	client := fakeEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ep123/runsync" {
			t.Errorf("wrong path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("missing bearer token, got %q", got)
		}
		var body map[string]map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad body: %v", err)
		}
		if _, ok := body["input"]["workflow"]; !ok {
			t.Error("workflow missing from input envelope")
		}
		json.NewEncoder(w).Encode(JobState{ID: "r1", Status: StatusCompleted})
	})

	state, err := client.RunSync(context.Background(), minimalRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.ID != "r1" || state.Status != StatusCompleted {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestClientRunAsync(t *testing.T) {
	client := fakeEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ep123/run" {
			t.Errorf("wrong path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(JobState{ID: "r2", Status: StatusInQueue})
	})

	state, err := client.Run(context.Background(), minimalRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.ID != "r2" || state.Status != StatusInQueue {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestClientSubmitsImagesAlongsideWorkflow(t *testing.T) {
	client := fakeEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input struct {
				Images []workflow.InputImage `json:"images"`
			} `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad body: %v", err)
		}
		if len(body.Input.Images) != 1 || body.Input.Images[0].Name != "input.png" {
			t.Errorf("images not forwarded: %+v", body.Input.Images)
		}
		json.NewEncoder(w).Encode(JobState{ID: "r3", Status: StatusInQueue})
	})

	req := minimalRequest()
	req.Images = []workflow.InputImage{{Name: "input.png", Image: "aGVsbG8="}}
	if _, err := client.Run(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClientStatus(t *testing.T) {
	client := fakeEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ep123/status/r1" {
			t.Errorf("wrong path %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("wrong method %s", r.Method)
		}
		json.NewEncoder(w).Encode(JobState{ID: "r1", Status: StatusInProgress})
	})

	state, err := client.Status(context.Background(), "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Status != StatusInProgress {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestClientSubmissionError(t *testing.T) {
	client := fakeEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	_, err := client.Run(context.Background(), minimalRequest())
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
	if !strings.Contains(subErr.Error(), "401") {
		t.Fatalf("error should carry the HTTP status: %v", subErr)
	}
}

func TestClientStatusQueryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := NewClient(srv.URL, "ep123", "tok")
	srv.Close() // connection refused from here on

	_, err := client.Status(context.Background(), "r1")
	var queryErr *StatusQueryError
	if !errors.As(err, &queryErr) {
		t.Fatalf("expected StatusQueryError, got %v", err)
	}
	if queryErr.JobID != "r1" {
		t.Fatalf("job id not attached: %+v", queryErr)
	}
}

func TestClientRejectsGarbageResponse(t *testing.T) {
	client := fakeEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	})

	_, err := client.Status(context.Background(), "r1")
	var queryErr *StatusQueryError
	if !errors.As(err, &queryErr) {
		t.Fatalf("expected StatusQueryError, got %v", err)
	}
}

func TestClientIgnoresAmbientProxy(t *testing.T) {
	client := NewClient("https://api.example.com/v2", "ep123", "tok")
	transport, ok := client.http.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("unexpected transport %T", client.http.Transport)
	}
	if transport.Proxy != nil {
		t.Fatal("transport must not consult ambient proxy configuration")
	}
}
