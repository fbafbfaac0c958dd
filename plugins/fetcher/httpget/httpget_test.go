package httpget

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rxnfetch/pkg/contract"
)

func TestFetchOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method=%s", r.Method)
		}
		if r.Header.Get("User-Agent") != "ua-test" || r.Header.Get("X-Token") != "t" {
			t.Errorf("headers not applied: %v", r.Header)
		}
		_, _ = io.WriteString(w, "PK-archive-bytes")
	}))
	defer srv.Close()

	c, err := New(&Options{UserAgent: "ua-test", ExtraHeaders: map[string]string{"X-Token": "t", "": "skip"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	rc, err := c.Fetch(context.Background(), srv.URL+"/files/1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "PK-archive-bytes" {
		t.Fatalf("body=%q", string(b))
	}
}

func TestFetchStatus(t *testing.T) {
	cases := []struct {
		status  int
		netLike bool
	}{
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusBadGateway, true},
		{http.StatusRequestTimeout, true},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		c, _ := New(nil)
		_, err := c.Fetch(context.Background(), srv.URL)
		srv.Close()
		if !errors.Is(err, contract.ErrUpstreamStatus) {
			t.Fatalf("%d: expect ErrUpstreamStatus, got %v", tc.status, err)
		}
		var ue contract.UpstreamError
		if !errors.As(err, &ue) || ue.UpstreamStatus() != tc.status || ue.UpstreamMessage() != "nope" {
			t.Fatalf("%d: upstream error mismatch: %v", tc.status, err)
		}
		var se statusError
		errors.As(err, &se)
		if se.Temporary() != tc.netLike {
			t.Fatalf("%d: temporary=%v", tc.status, se.Temporary())
		}
	}
}

func TestFetchBadURL(t *testing.T) {
	c, _ := New(nil)
	for _, u := range []string{"", "ftp://x/y", "not a url", "http://"} {
		if _, err := c.Fetch(context.Background(), u); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("%q: expect ErrInvalidInput, got %v", u, err)
		}
	}
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()
	c, _ := New(&Options{TimeoutSeconds: 5})
	_, err := c.Fetch(context.Background(), addr)
	if err == nil {
		t.Fatalf("expect dial error")
	}
	var nerr net.Error
	if !errors.As(err, &nerr) {
		t.Fatalf("expect net.Error, got %T %v", err, err)
	}
}

func TestFetchCtxCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	c, _ := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Fetch(ctx, srv.URL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect deadline, got %v", err)
	}
}

func TestNewInvalid(t *testing.T) {
	if _, err := New(&Options{TimeoutSeconds: -1}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("expect invalid input, got %v", err)
	}
}
