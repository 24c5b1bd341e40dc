package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"montage/internal/services"
)

func TestClientSendsTokenAndDecodes(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(RunListResponse{Runs: []Run{{ID: "run-1", Status: "REVIEW"}}})
	}))
	defer srv.Close()

	client := NewClient(strings.TrimPrefix(srv.URL, "http://"), "secret")
	runs, err := client.ListRuns(context.Background(), []string{"REVIEW", "FAILED"})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Fatalf("runs = %+v", runs)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotQuery != "status=REVIEW&status=FAILED" {
		t.Fatalf("query = %q", gotQuery)
	}
}

func TestClientMapsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/approve"):
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "run run-1 is not awaiting review"})
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "run not found"})
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.Approve(context.Background(), "run-1")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("approve error = %v, want validation", err)
	}
	if err.Error() != "run run-1 is not awaiting review" {
		t.Fatalf("approve message = %q", err.Error())
	}

	_, err = client.DescribeRun(context.Background(), "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("describe error = %v, want not found", err)
	}
}

func TestClientWithoutAddress(t *testing.T) {
	if err := NewClient("", "").Health(context.Background()); err == nil {
		t.Fatal("expected error without an address")
	}
}
