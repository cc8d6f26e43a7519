package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yllada/travel-router/common"
)

type fakeKillSwitch struct {
	on  bool
	err error
}

func (f fakeKillSwitch) KillSwitchEnabled(ctx context.Context) (bool, error) {
	return f.on, f.err
}

func countingServer(t *testing.T, healthyAfter int32, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if n < healthyAfter {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name          string
		handler       http.HandlerFunc
		wantReachable bool
		wantAddr      string
	}{
		{
			name:          "address body",
			handler:       func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("203.0.113.7\n")) },
			wantReachable: true,
			wantAddr:      "203.0.113.7",
		},
		{
			name:          "non address body",
			handler:       func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("<html>")) },
			wantReachable: true,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		},
		{
			name: "too slow",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(time.Second):
				case <-r.Context().Done():
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			p := New(Config{Endpoint: srv.URL})
			got := p.Probe(context.Background(), 50*time.Millisecond)
			if got.Reachable != tt.wantReachable {
				t.Errorf("Reachable = %v, want %v", got.Reachable, tt.wantReachable)
			}
			if got.ObservedAddress != tt.wantAddr {
				t.Errorf("ObservedAddress = %q, want %q", got.ObservedAddress, tt.wantAddr)
			}
			if got.Skipped {
				t.Error("single probe must never be skipped")
			}
		})
	}
}

func TestProbe_UnreachableEndpoint(t *testing.T) {
	p := New(Config{Endpoint: "http://127.0.0.1:1/ip"})
	if got := p.Probe(context.Background(), 100*time.Millisecond); got.Reachable {
		t.Error("closed port should be unreachable")
	}
}

func TestWait_KillSwitchSkipsNetwork(t *testing.T) {
	srv, hits := countingServer(t, 1, "203.0.113.7")
	p := New(Config{
		Endpoint:         srv.URL,
		KillSwitch:       fakeKillSwitch{on: true},
		SkipOnKillSwitch: true,
		Interval:         10 * time.Millisecond,
	})

	var ticks uint
	got, err := p.Wait(context.Background(), time.Second, func(uint) { ticks++ })
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !got.Skipped || got.Reachable {
		t.Errorf("result = %+v, want Skipped", got)
	}
	if hits.Load() != 0 || ticks != 0 {
		t.Errorf("hits = %d, ticks = %d, want no network activity", hits.Load(), ticks)
	}
}

func TestWait_OneCallPerTick(t *testing.T) {
	srv, hits := countingServer(t, 3, "203.0.113.7")
	p := New(Config{
		Endpoint:         srv.URL,
		KillSwitch:       fakeKillSwitch{on: false},
		SkipOnKillSwitch: true,
		Interval:         10 * time.Millisecond,
		ProbeTimeout:     100 * time.Millisecond,
	})

	var ticks uint
	got, err := p.Wait(context.Background(), time.Second, func(uint) { ticks++ })
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !got.Reachable || got.ObservedAddress != "203.0.113.7" {
		t.Errorf("result = %+v", got)
	}
	if hits.Load() != 3 || ticks != 3 {
		t.Errorf("hits = %d, ticks = %d, want 3 each", hits.Load(), ticks)
	}
}

func TestWait_SkipDisabledProbesAnyway(t *testing.T) {
	srv, hits := countingServer(t, 1, "203.0.113.7")
	p := New(Config{
		Endpoint:         srv.URL,
		KillSwitch:       fakeKillSwitch{on: true},
		SkipOnKillSwitch: false,
		Interval:         10 * time.Millisecond,
	})
	got, err := p.Wait(context.Background(), time.Second, nil)
	if err != nil || got.Skipped || !got.Reachable {
		t.Errorf("Wait() = %+v, %v", got, err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestWait_KillSwitchErrorFallsThrough(t *testing.T) {
	srv, _ := countingServer(t, 1, "203.0.113.7")
	p := New(Config{
		Endpoint:         srv.URL,
		KillSwitch:       fakeKillSwitch{err: errors.New("daemon down")},
		SkipOnKillSwitch: true,
		Interval:         10 * time.Millisecond,
	})
	got, err := p.Wait(context.Background(), time.Second, nil)
	if err != nil || !got.Reachable {
		t.Errorf("Wait() = %+v, %v", got, err)
	}
}

func TestWait_Timeout(t *testing.T) {
	srv, hits := countingServer(t, 1000, "")
	p := New(Config{Endpoint: srv.URL, Interval: 10 * time.Millisecond, ProbeTimeout: 50 * time.Millisecond})

	got, err := p.Wait(context.Background(), 50*time.Millisecond, nil)
	var te *common.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Wait() error = %v, want TimeoutError", err)
	}
	if got.Reachable {
		t.Error("result should be unreachable")
	}
	if h := hits.Load(); h == 0 || int(h) > int(te.Attempts) {
		t.Errorf("attempts = %d, hits = %d", te.Attempts, h)
	}
}

func TestWait_SilentEndpointBoundedByBudget(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	const budget = time.Second
	p := New(Config{Endpoint: srv.URL, Interval: 100 * time.Millisecond, ProbeTimeout: 300 * time.Millisecond})

	start := time.Now()
	_, err := p.Wait(context.Background(), budget, nil)
	elapsed := time.Since(start)

	if !errors.Is(err, common.ErrTimeout) {
		t.Fatalf("Wait() error = %v, want ErrTimeout", err)
	}
	if elapsed > budget+300*time.Millisecond {
		t.Errorf("elapsed = %v, want about %v", elapsed, budget)
	}
}

func TestSTUNObserver_NoServers(t *testing.T) {
	if _, err := (&STUNObserver{}).Observe(context.Background()); err == nil {
		t.Error("expected error without servers")
	}
}

func TestSTUNHelpers(t *testing.T) {
	if got := stunURI(" stun.l.google.com:19302 "); got != "stun:stun.l.google.com:19302" {
		t.Errorf("stunURI = %q", got)
	}
	if got := stunURI("stun:example.org"); got != "stun:example.org" {
		t.Errorf("stunURI = %q", got)
	}
	if got := hostOnly("198.51.100.4:40000"); got != "198.51.100.4" {
		t.Errorf("hostOnly = %q", got)
	}
	if got := hostOnly("198.51.100.4"); got != "198.51.100.4" {
		t.Errorf("hostOnly = %q", got)
	}
}
