package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Spec-DY/Drone-Panel/internal/dashboard"
	"github.com/Spec-DY/Drone-Panel/internal/model"
	"github.com/Spec-DY/Drone-Panel/internal/query"
)

func TestLatestURL(t *testing.T) {
	got, err := latestURL("http://localhost:8080/", 25)
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://localhost:8080/api/telemetry?limit=25" {
		t.Fatalf("url = %q", got)
	}
	if _, err := latestURL("localhost:8080", 1); err == nil {
		t.Fatal("expected error for relative URL")
	}
}

func TestFetchAndRender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/telemetry" || r.URL.Query().Get("limit") != "3" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"mode":"latest","count":3,"limit":3,"data":[
			{"id":3,"deviceId":"A","timestamp":1700000300000,"latitude":51.5,"longitude":-0.1},
			{"id":2,"deviceId":"B","timestamp":1700000200000},
			{"id":1,"deviceId":"A","timestamp":1700000100000}]}`))
	}))
	defer srv.Close()

	endpoint, err := latestURL(srv.URL, 3)
	if err != nil {
		t.Fatal(err)
	}
	res, err := fetch(context.Background(), srv.Client(), endpoint)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Mode != query.ModeLatest || res.Count != 3 {
		t.Fatalf("unexpected result %+v", res)
	}

	var out bytes.Buffer
	now := time.UnixMilli(1700000360000)
	render(&out, res, dashboard.NewestPerDevice(res.Data), now)

	text := out.String()
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, column row and 2 devices:\n%s", text)
	}
	if !strings.Contains(lines[0], "3 samples, 2 devices") {
		t.Errorf("summary line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "A ") || !strings.Contains(lines[2], "1 minute ago") {
		t.Errorf("device A row = %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], "B ") {
		t.Errorf("device B row = %q", lines[3])
	}
}

func TestFetch_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":"failed","kind":"store_failure"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := fetch(context.Background(), srv.Client(), srv.URL+"/api/telemetry")
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestRender_Empty(t *testing.T) {
	var out bytes.Buffer
	render(&out, query.Result{Data: []model.StoredRecord{}}, nil, time.Now())
	if !strings.Contains(out.String(), "0 samples, 0 devices") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
