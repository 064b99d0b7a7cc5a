package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	gohttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/umfrage/pkg/api"
	"github.com/rhuss/umfrage/pkg/auth"
	"github.com/rhuss/umfrage/pkg/transport"
)

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	return bytes.NewReader(data)
}

func anonymousAuth() transport.Middleware {
	return auth.Middleware(&auth.Chain{Default: auth.Yes}, nil, auth.DefaultBypassPaths)
}

func TestServerStartsAndAcceptsRequests(t *testing.T) {
	srv := NewServer(newService(t), nil, anonymousAuth(), WithAddr("127.0.0.1:0"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeOn(ctx, ln) }()

	resp, err := gohttp.Post("http://"+addr+"/v1/surveys", "application/json",
		jsonBody(t, api.Survey{Name: "Server test", DefaultLang: "en"}))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != gohttp.StatusCreated {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusCreated)
	}
	if resp.Header.Get(transport.RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}

	var got api.Survey
	json.NewDecoder(resp.Body).Decode(&got)
	if got.ID <= 0 || got.Name != "Server test" {
		t.Errorf("survey = %+v", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeOn returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerGracefulShutdown(t *testing.T) {
	release := make(chan struct{})
	slow := gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		<-release
		w.WriteHeader(gohttp.StatusOK)
	})

	srv := NewServer(newService(t), nil, nil, WithShutdownTimeout(5*time.Second))
	srv.httpServer.Handler = slow

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeOn(ctx, ln) }()

	responseCh := make(chan int, 1)
	go func() {
		resp, err := gohttp.Get("http://" + addr + "/slow")
		if err != nil {
			responseCh <- 0
			return
		}
		defer resp.Body.Close()
		responseCh <- resp.StatusCode
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	if status := <-responseCh; status != gohttp.StatusOK {
		t.Errorf("in-flight request status = %d, want %d", status, gohttp.StatusOK)
	}
	if err := <-done; err != nil {
		t.Errorf("ServeOn returned %v", err)
	}
}

func TestServerHealth(t *testing.T) {
	healthy := NewServer(newService(t), func(context.Context) error { return nil }, nil)
	rec := httptest.NewRecorder()
	healthy.Handler().ServeHTTP(rec, httptest.NewRequest(gohttp.MethodGet, "/healthz", nil))
	if rec.Code != gohttp.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}

	failing := NewServer(newService(t), func(context.Context) error { return errors.New("db down") }, nil)
	rec = httptest.NewRecorder()
	failing.Handler().ServeHTTP(rec, httptest.NewRequest(gohttp.MethodGet, "/healthz", nil))
	if rec.Code != gohttp.StatusServiceUnavailable {
		t.Errorf("healthz status = %d, want %d", rec.Code, gohttp.StatusServiceUnavailable)
	}
}

func TestServerAuthentication(t *testing.T) {
	deny := auth.Middleware(&auth.Chain{Default: auth.No}, nil, auth.DefaultBypassPaths)
	srv := NewServer(newService(t), nil, deny, WithMetrics("/metrics"))
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(gohttp.MethodGet, "/v1/surveys", nil))
	if rec.Code != gohttp.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, gohttp.StatusUnauthorized)
	}
	if rec.Header().Get(transport.RequestIDHeader) == "" {
		t.Error("rejected requests still carry a request id")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(gohttp.MethodGet, "/healthz", nil))
	if rec.Code != gohttp.StatusOK {
		t.Errorf("healthz status = %d, want %d", rec.Code, gohttp.StatusOK)
	}
}

func TestServerMetrics(t *testing.T) {
	srv := NewServer(newService(t), nil, anonymousAuth(), WithMetrics("/metrics"))
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(gohttp.MethodGet, "/v1/surveys", nil))
	if rec.Code != gohttp.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(gohttp.MethodGet, "/metrics", nil))
	if rec.Code != gohttp.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `umfrage_requests_total{method="GET",route="GET /v1/surveys",status="2xx"}`) {
		t.Errorf("metrics output lacks the request counter:\n%s", body)
	}

	disabled := NewServer(newService(t), nil, anonymousAuth())
	rec = httptest.NewRecorder()
	disabled.Handler().ServeHTTP(rec, httptest.NewRequest(gohttp.MethodGet, "/metrics", nil))
	if rec.Code != gohttp.StatusNotFound {
		t.Errorf("metrics disabled status = %d, want %d", rec.Code, gohttp.StatusNotFound)
	}
}

func TestServerFunctionalOptions(t *testing.T) {
	srv := NewServer(newService(t), nil, nil,
		WithAddr(":9999"),
		WithMaxBodySize(1024),
		WithMaxUploadSize(2048),
		WithTimeouts(time.Second, 2*time.Second),
		WithShutdownTimeout(10*time.Second),
	)

	if srv.config.Addr != ":9999" {
		t.Errorf("addr = %q, want %q", srv.config.Addr, ":9999")
	}
	if srv.adapter.config.MaxBodySize != 1024 {
		t.Errorf("max body size = %d, want %d", srv.adapter.config.MaxBodySize, 1024)
	}
	if srv.adapter.config.MaxUploadSize != 2048 {
		t.Errorf("max upload size = %d, want %d", srv.adapter.config.MaxUploadSize, 2048)
	}
	if srv.httpServer.ReadTimeout != time.Second || srv.httpServer.WriteTimeout != 2*time.Second {
		t.Errorf("timeouts = %v/%v", srv.httpServer.ReadTimeout, srv.httpServer.WriteTimeout)
	}
	if srv.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %v, want %v", srv.config.ShutdownTimeout, 10*time.Second)
	}
}
