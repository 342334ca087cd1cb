package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func TestPush_EmptyURLIsNoop(t *testing.T) {
	if err := Push(context.Background(), "", DefaultJob, "run"); err != nil {
		t.Errorf("Push() with empty url = %v, want nil", err)
	}
}

func TestPushFrom(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "intercom_export_pages_written_total",
		Help: "test",
	})
	reg.MustRegister(counter)
	counter.Add(3)

	if err := PushFrom(context.Background(), reg, server.URL, "", "abcd1234"); err != nil {
		t.Fatalf("PushFrom() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/metrics/job/intercom_export/run_id/abcd1234" {
		t.Errorf("path = %q", path)
	}
	if body == "" {
		t.Error("expected a metrics payload")
	}
}

func TestPushFrom_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := PushFrom(context.Background(), prometheus.NewRegistry(), server.URL, "job", "")
	if err == nil {
		t.Fatal("expected error on 500")
	}
	if !strings.Contains(err.Error(), "push metrics") {
		t.Errorf("error = %v", err)
	}
}
