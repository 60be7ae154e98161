package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func captureServer(t *testing.T, status int, got *PushRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(status)
	}))
}

func TestPushEventJSON_Labels(t *testing.T) {
	var got PushRequest
	srv := captureServer(t, http.StatusNoContent, &got)
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	raw := `{"type":"new_scan","courseId":"course a","sessionId":"s1","studentId":"stu-1","at":"2024-01-01T09:05:00+08:00"}`
	if err := c.PushEventJSON(context.Background(), []byte(raw)); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}

	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(got.Streams))
	}
	s := got.Streams[0]
	if s.Stream["job"] != Job || s.Stream["event_type"] != "new_scan" || s.Stream["course_id"] != "course_a" {
		t.Errorf("labels = %v", s.Stream)
	}
	if _, ok := s.Stream["student_id"]; ok {
		t.Error("student id must not be a label")
	}
	want := time.Date(2024, 1, 1, 1, 5, 0, 0, time.UTC).UnixNano()
	if len(s.Values) != 1 || s.Values[0][0] != jsonInt(want) || s.Values[0][1] != raw {
		t.Errorf("values = %v", s.Values)
	}
}

func TestPushEventJSON_Unparseable(t *testing.T) {
	var got PushRequest
	srv := captureServer(t, http.StatusNoContent, &got)
	defer srv.Close()

	c, _ := NewClient(srv.URL, nil)
	if err := c.PushEventJSON(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(got.Streams) != 1 || len(got.Streams[0].Stream) != 1 || got.Streams[0].Values[0][1] != "not json" {
		t.Errorf("push = %+v", got)
	}
}

func TestPush_Non2xx(t *testing.T) {
	var got PushRequest
	srv := captureServer(t, http.StatusBadRequest, &got)
	defer srv.Close()

	c, _ := NewClient(srv.URL, nil)
	if err := c.Push(context.Background(), time.Now(), "x", nil); err == nil {
		t.Fatal("Push should fail on 400")
	}
}

func TestNewClient_EmptyURL(t *testing.T) {
	if _, err := NewClient("  ", nil); err == nil {
		t.Fatal("NewClient should reject an empty URL")
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
