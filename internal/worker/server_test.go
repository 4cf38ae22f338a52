package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shelfwatch/shelfwatch/internal/scheduler"
)

type fakeSched struct {
	leader  bool
	running bool
	snap    scheduler.Status
}

func (f *fakeSched) Snapshot() scheduler.Status { return f.snap }
func (f *fakeSched) IsLeader() bool             { return f.leader }
func (f *fakeSched) Running() bool              { return f.running }

type fakeLocks struct {
	keys []int64
}

func (f *fakeLocks) HeldKeys() []int64 { return f.keys }

type fakePinger struct {
	err error
}

func (f *fakePinger) PingContext(_ context.Context) error { return f.err }

func newTestServer(db *fakePinger, sched *fakeSched, locks *fakeLocks) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(8090, db, sched, locks, logger)
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzOK(t *testing.T) {
	s := newTestServer(&fakePinger{}, &fakeSched{leader: true, running: true}, &fakeLocks{})
	rec := get(t, s.Handler(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}
}

func TestHealthzFailsDuringShutdown(t *testing.T) {
	s := newTestServer(&fakePinger{}, &fakeSched{leader: true, running: true}, &fakeLocks{})
	s.BeginShutdown()
	rec := get(t, s.Handler(), "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("healthz during shutdown = %d, want 503", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name     string
		db       *fakePinger
		sched    *fakeSched
		shutdown bool
		want     int
	}{
		{"ready leader", &fakePinger{}, &fakeSched{leader: true, running: true}, false, http.StatusOK},
		{"standby replica", &fakePinger{}, &fakeSched{leader: false, running: false}, false, http.StatusServiceUnavailable},
		{"db down", &fakePinger{err: errors.New("refused")}, &fakeSched{leader: true, running: true}, false, http.StatusServiceUnavailable},
		{"scheduler not started", &fakePinger{}, &fakeSched{leader: true, running: false}, false, http.StatusServiceUnavailable},
		{"shutting down", &fakePinger{}, &fakeSched{leader: true, running: true}, true, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(tt.db, tt.sched, &fakeLocks{})
			if tt.shutdown {
				s.BeginShutdown()
			}
			rec := get(t, s.Handler(), "/readyz")
			if rec.Code != tt.want {
				t.Errorf("readyz = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestStatusReportsSchedulerAndLocks(t *testing.T) {
	sched := &fakeSched{
		leader:  true,
		running: true,
		snap: scheduler.Status{
			Leader:          true,
			Running:         true,
			ProductsChecked: 7,
			TrackedProducts: 3,
		},
	}
	locks := &fakeLocks{keys: []int64{4294967297}}
	s := newTestServer(&fakePinger{}, sched, locks)

	rec := get(t, s.Handler(), "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Version      string           `json:"version"`
		ShuttingDown bool             `json:"shutting_down"`
		Scheduler    scheduler.Status `json:"scheduler"`
		HeldLocks    []int64          `json:"held_locks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if body.Version == "" {
		t.Error("status omitted version")
	}
	if body.Scheduler.ProductsChecked != 7 {
		t.Errorf("scheduler products checked = %d", body.Scheduler.ProductsChecked)
	}
	if len(body.HeldLocks) != 1 || body.HeldLocks[0] != 4294967297 {
		t.Errorf("held locks = %v", body.HeldLocks)
	}
}

func TestMetricsAreFlatNumbers(t *testing.T) {
	sched := &fakeSched{snap: scheduler.Status{
		CheckSweeps:     2,
		ProductsChecked: 9,
		Delivered:       4,
	}}
	s := newTestServer(&fakePinger{}, sched, &fakeLocks{keys: []int64{1, 2}})

	rec := get(t, s.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	for key, value := range body {
		if key == "$schema" {
			continue
		}
		if _, ok := value.(float64); !ok {
			t.Errorf("metric %q is %T, want a number", key, value)
		}
	}
	if body["products_checked"] != float64(9) {
		t.Errorf("products_checked = %v", body["products_checked"])
	}
	if body["held_locks"] != float64(2) {
		t.Errorf("held_locks = %v", body["held_locks"])
	}
}
