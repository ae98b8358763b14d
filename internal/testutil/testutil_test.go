package testutil

import (
	"errors"
	"io"
	"net/http"
	"testing"
)

func TestAssertStatusCode(t *testing.T) {
	mock := &testing.T{}
	AssertStatusCode(mock, 200, 200)
	if mock.Failed() {
		t.Error("AssertStatusCode failed on matching codes")
	}

	mock = &testing.T{}
	AssertStatusCode(mock, 404, 200)
	if !mock.Failed() {
		t.Error("AssertStatusCode passed on mismatched codes")
	}
}

func TestAssertNoError(t *testing.T) {
	mock := &testing.T{}
	AssertNoError(mock, nil)
	if mock.Failed() {
		t.Error("AssertNoError failed on nil error")
	}
}

func TestNewTestRequest(t *testing.T) {
	req := NewTestRequest(http.MethodGet, "/api/device")
	if req.Method != http.MethodGet {
		t.Errorf("method = %q", req.Method)
	}
	if req.URL.Path != "/api/device" {
		t.Errorf("path = %q", req.URL.Path)
	}
}

func TestNewJSONRequest(t *testing.T) {
	req := NewJSONRequest(http.MethodPost, "/api/stream", `{"streaming":true}`)
	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != `{"streaming":true}` {
		t.Errorf("body = %q", body)
	}
}

func TestNewTestRecorder(t *testing.T) {
	rec := NewTestRecorder()
	rec.WriteHeader(http.StatusTeapot)
	AssertStatusCode(t, rec.Code, http.StatusTeapot)
}

func TestAssertErrorHelpers(t *testing.T) {
	// AssertError calls t.Fatal on nil errors, which would stop this test,
	// so only the passing direction is exercised directly.
	AssertError(t, errors.New("boom"))
	AssertNoError(t, nil)
}
