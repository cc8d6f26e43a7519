package network

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yllada/travel-router/common"
	"github.com/yllada/travel-router/execx"
)

// memStore is an in-memory NetworkManager.
type memStore struct {
	mu       sync.Mutex
	profiles []Profile
	active   map[uuid.UUID]bool
	psk      map[string]string
	// goodPSK makes Up fail unless the profile carries this password.
	goodPSK string
	calls   []string
}

func newMemStore() *memStore {
	return &memStore{active: map[uuid.UUID]bool{}, psk: map[string]string{}}
}

func (m *memStore) ActiveProfiles(ctx context.Context) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Profile
	for _, p := range m.profiles {
		if m.active[p.UUID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) Profiles(ctx context.Context) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Profile(nil), m.profiles...), nil
}

func (m *memStore) Down(ctx context.Context, p Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "down "+p.Name)
	delete(m.active, p.UUID)
	return nil
}

func (m *memStore) Delete(ctx context.Context, p Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "delete "+p.Name)
	for i, q := range m.profiles {
		if q.UUID == p.UUID {
			m.profiles = append(m.profiles[:i], m.profiles[i+1:]...)
			delete(m.active, p.UUID)
			return nil
		}
	}
	return common.ErrProfileNotFound
}

func (m *memStore) AddWifi(ctx context.Context, p common.NetworkProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "add "+p.Name)
	m.profiles = append(m.profiles, Profile{Name: p.Name, UUID: uuid.New(), Type: "802-11-wireless", Device: p.Interface})
	m.psk[p.Name] = p.Password
	return nil
}

func (m *memStore) Up(ctx context.Context, name, iface string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "up "+name)
	if m.goodPSK != "" && m.psk[name] != m.goodPSK {
		return errors.New("Error: Connection activation failed: Secrets were required, but not provided.")
	}
	for _, p := range m.profiles {
		if p.Name == name {
			m.active[p.UUID] = true
			return nil
		}
	}
	return common.ErrProfileNotFound
}

func venue(password string) common.NetworkProfile {
	return common.NetworkProfile{
		Role:      common.RoleVenueNetwork,
		Name:      "venue-wifi",
		Interface: "wlan1",
		Priority:  10,
		SSID:      "Hotel_Guest",
		Password:  password,
		Activate:  true,
	}
}

func TestReplace_TwiceLeavesOneProfile(t *testing.T) {
	store := newMemStore()
	r := NewReplacer(store)
	ctx := context.Background()

	first, err := r.Replace(ctx, venue("hunter2"))
	if err != nil {
		t.Fatalf("first Replace() error = %v", err)
	}
	second, err := r.Replace(ctx, venue("hunter3"))
	if err != nil {
		t.Fatalf("second Replace() error = %v", err)
	}
	if first.UUID == second.UUID {
		t.Error("second replace should create a new profile")
	}

	profiles, _ := store.Profiles(ctx)
	if len(profiles) != 1 {
		t.Fatalf("stored profiles = %d, want 1", len(profiles))
	}
	active, _ := store.ActiveProfiles(ctx)
	if len(active) != 1 || active[0].UUID != second.UUID {
		t.Errorf("active profiles = %+v, want only %s", active, second.UUID)
	}
	if store.psk["venue-wifi"] != "hunter3" {
		t.Errorf("stored password = %q, want the second one", store.psk["venue-wifi"])
	}
}

func TestReplace_OrderOfOperations(t *testing.T) {
	store := newMemStore()
	r := NewReplacer(store)
	ctx := context.Background()
	if _, err := r.Replace(ctx, venue("hunter2")); err != nil {
		t.Fatal(err)
	}
	store.calls = nil

	if _, err := r.Replace(ctx, venue("hunter2")); err != nil {
		t.Fatal(err)
	}
	want := []string{"down venue-wifi", "delete venue-wifi", "add venue-wifi", "up venue-wifi"}
	if strings.Join(store.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", store.calls, want)
	}
}

func TestReplace_BadCredentials(t *testing.T) {
	store := newMemStore()
	store.goodPSK = "hunter2"
	r := NewReplacer(store)

	_, err := r.Replace(context.Background(), venue("wrongpass"))
	var credErr *common.CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("Replace() error = %v, want CredentialError", err)
	}
	if !strings.Contains(credErr.Detail, "Secrets were required") {
		t.Errorf("Detail = %q, want the tool's text", credErr.Detail)
	}
	if !errors.Is(err, common.ErrCredentials) {
		t.Error("error should match ErrCredentials")
	}
	if n := strings.Count(strings.Join(store.calls, ","), "up "); n != 1 {
		t.Errorf("activation attempts = %d, want 1", n)
	}
}

func TestReplace_ActivationTimeoutIsNotCredentials(t *testing.T) {
	id := uuid.New()
	runner := &scriptRunner{
		out: map[string]string{
			"-t -f NAME,UUID,TYPE,DEVICE connection show": "venue-wifi:" + id.String() + ":802-11-wireless:\n",
		},
		fail: map[string]string{
			"--wait 30 connection up id venue-wifi ifname wlan1": "Error: Timeout expired (30 seconds)",
		},
	}
	r := NewReplacer(NewNMCLI(runner, 30*time.Second))

	handle, err := r.Replace(context.Background(), venue("hunter2"))
	var wanErr *common.WANTimeoutError
	if !errors.As(err, &wanErr) {
		t.Fatalf("Replace() error = %v, want WANTimeoutError", err)
	}
	if wanErr.Interface != "wlan1" || wanErr.Budget != 30*time.Second {
		t.Errorf("WANTimeoutError = %+v", wanErr)
	}
	if errors.Is(err, common.ErrCredentials) {
		t.Error("timeout must not match ErrCredentials")
	}
	if handle.UUID != id {
		t.Errorf("handle UUID = %s, want %s", handle.UUID, id)
	}
}

func TestReplace_PassiveRoleKeepsLiveLink(t *testing.T) {
	store := newMemStore()
	r := NewReplacer(store)
	ctx := context.Background()
	if _, err := r.Replace(ctx, venue("hunter2")); err != nil {
		t.Fatal(err)
	}

	hotspot := common.NetworkProfile{
		Role:      common.RoleFallbackHotspot,
		Name:      "fallback-hotspot",
		Interface: "wlan1",
		Priority:  -10,
		SSID:      "Phone",
		Password:  "tethering",
	}
	if _, err := r.Replace(ctx, hotspot); err != nil {
		t.Fatalf("Replace(hotspot) error = %v", err)
	}
	active, _ := store.ActiveProfiles(ctx)
	if len(active) != 1 || active[0].Name != "venue-wifi" {
		t.Errorf("active = %+v, want venue-wifi still up", active)
	}
	profiles, _ := store.Profiles(ctx)
	if len(profiles) != 2 {
		t.Errorf("stored profiles = %d, want 2", len(profiles))
	}
}

func TestReplace_RejectsEmptyFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*common.NetworkProfile)
	}{
		{"no ssid", func(p *common.NetworkProfile) { p.SSID = "  " }},
		{"no password", func(p *common.NetworkProfile) { p.Password = "" }},
		{"no interface", func(p *common.NetworkProfile) { p.Interface = "" }},
		{"no name", func(p *common.NetworkProfile) { p.Name = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			p := venue("hunter2")
			tt.mutate(&p)
			_, err := NewReplacer(store).Replace(context.Background(), p)
			if !errors.Is(err, common.ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
			if len(store.calls) != 0 {
				t.Errorf("calls = %v, want none", store.calls)
			}
		})
	}
}

// flipDevice reports disconnected until the given attempt.
type flipDevice struct {
	mu        sync.Mutex
	calls     int
	connectAt int
	failFirst bool
}

func (f *flipDevice) DeviceState(ctx context.Context, iface string) (DeviceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failFirst && f.calls == 1 {
		return DeviceState{}, errors.New("Error: Device 'wlan1' not found.")
	}
	if f.connectAt > 0 && f.calls >= f.connectAt {
		return DeviceState{Code: 100, Text: "connected"}, nil
	}
	return DeviceState{Code: 30, Text: "disconnected"}, nil
}

func TestWaitForAssociation(t *testing.T) {
	tests := []struct {
		name      string
		dev       *flipDevice
		timeout   time.Duration
		wantErr   bool
		wantCalls int
	}{
		{"connects on third check", &flipDevice{connectAt: 3}, 100 * time.Millisecond, false, 3},
		{"already connected", &flipDevice{connectAt: 1}, 100 * time.Millisecond, false, 1},
		{"transient device error", &flipDevice{connectAt: 2, failFirst: true}, 100 * time.Millisecond, false, 2},
		{"never connects", &flipDevice{}, 50 * time.Millisecond, true, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWaiter(tt.dev, 10*time.Millisecond)
			var ticks uint
			w.OnTick = func(uint) { ticks++ }

			err := w.WaitForAssociation(context.Background(), "wlan1", tt.timeout)
			if tt.wantErr {
				var wanErr *common.WANTimeoutError
				if !errors.As(err, &wanErr) {
					t.Fatalf("error = %v, want WANTimeoutError", err)
				}
				if wanErr.Interface != "wlan1" {
					t.Errorf("Interface = %q", wanErr.Interface)
				}
				if !errors.Is(err, common.ErrTimeout) {
					t.Error("should match ErrTimeout")
				}
			} else if err != nil {
				t.Fatalf("error = %v", err)
			}
			if tt.dev.calls != tt.wantCalls {
				t.Errorf("checks = %d, want %d", tt.dev.calls, tt.wantCalls)
			}
			if int(ticks) != tt.dev.calls {
				t.Errorf("ticks = %d, want one per check (%d)", ticks, tt.dev.calls)
			}
		})
	}
}

func TestWaitForAssociation_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewWaiter(&flipDevice{}, 10*time.Millisecond).WaitForAssociation(ctx, "wlan1", time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

// scriptRunner answers nmcli invocations from a table keyed by joined args.
type scriptRunner struct {
	out   map[string]string
	fail  map[string]string
	calls []string
}

func (s *scriptRunner) Run(ctx context.Context, name string, args ...string) error {
	_, err := s.Output(ctx, name, args...)
	return err
}

func (s *scriptRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	key := strings.Join(args, " ")
	s.calls = append(s.calls, key)
	if msg, ok := s.fail[key]; ok {
		return "", &execx.CommandError{Name: name, Args: args, Output: msg, Err: fmt.Errorf("exit status 10")}
	}
	return s.out[key], nil
}

func TestNMCLI_Profiles(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	runner := &scriptRunner{out: map[string]string{
		"-t -f NAME,UUID,TYPE,DEVICE connection show --active": fmt.Sprintf(
			"travel-ap:%s:802-11-wireless:wlan0\nCafe\\: Free:%s:802-11-wireless:wlan1\n", id1, id2),
	}}
	nm := NewNMCLI(runner, 0)

	got, err := nm.ActiveProfiles(context.Background())
	if err != nil {
		t.Fatalf("ActiveProfiles() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("profiles = %d, want 2", len(got))
	}
	if got[1].Name != "Cafe: Free" || got[1].UUID != id2 || got[1].Device != "wlan1" {
		t.Errorf("second profile = %+v", got[1])
	}

	ok, err := nm.ProfileActive(context.Background(), "travel-ap")
	if err != nil || !ok {
		t.Errorf("ProfileActive(travel-ap) = %v, %v", ok, err)
	}
}

func TestNMCLI_DeleteNotFound(t *testing.T) {
	id := uuid.New()
	runner := &scriptRunner{fail: map[string]string{
		"connection delete uuid " + id.String(): "Error: unknown connection '" + id.String() + "'.",
	}}
	err := NewNMCLI(runner, 0).Delete(context.Background(), Profile{Name: "venue-wifi", UUID: id})
	if !errors.Is(err, common.ErrProfileNotFound) {
		t.Errorf("Delete() error = %v, want ErrProfileNotFound", err)
	}
}

func TestNMCLI_UpKeepsToolText(t *testing.T) {
	msg := "Error: Connection activation failed: Secrets were required, but not provided."
	runner := &scriptRunner{fail: map[string]string{
		"--wait 30 connection up id venue-wifi ifname wlan1": msg,
	}}
	err := NewNMCLI(runner, 30*time.Second).Up(context.Background(), "venue-wifi", "wlan1")
	if err == nil || err.Error() != msg {
		t.Errorf("Up() error = %v, want %q", err, msg)
	}
}

func TestNMCLI_UpTimeout(t *testing.T) {
	runner := &scriptRunner{fail: map[string]string{
		"--wait 30 connection up id venue-wifi ifname wlan1": "Error: Timeout expired (30 seconds)",
	}}
	err := NewNMCLI(runner, 30*time.Second).Up(context.Background(), "venue-wifi", "wlan1")
	var te *common.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Up() error = %v, want TimeoutError", err)
	}
	if te.Budget != 30*time.Second {
		t.Errorf("Budget = %s, want 30s", te.Budget)
	}
}

func TestNMCLI_AddWifiArgs(t *testing.T) {
	runner := &scriptRunner{}
	err := NewNMCLI(runner, 0).AddWifi(context.Background(), venue("hunter2"))
	if err != nil {
		t.Fatal(err)
	}
	got := runner.calls[0]
	for _, want := range []string{"ifname wlan1", "con-name venue-wifi", "ssid Hotel_Guest", "wifi-sec.psk hunter2", "connection.autoconnect-priority 10"} {
		if !strings.Contains(got, want) {
			t.Errorf("args %q missing %q", got, want)
		}
	}
}

func TestParseDeviceState(t *testing.T) {
	tests := []struct {
		in        string
		code      int
		connected bool
		wantErr   bool
	}{
		{"100 (connected)", 100, true, false},
		{"30 (disconnected)", 30, false, false},
		{"70 (connecting (getting IP configuration))", 70, false, false},
		{"garbage", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			st, err := parseDeviceState(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if st.Code != tt.code || st.Connected() != tt.connected {
				t.Errorf("state = %+v", st)
			}
		})
	}
}

func TestNMCLI_DeviceAddress(t *testing.T) {
	runner := &scriptRunner{out: map[string]string{
		"-g IP4.ADDRESS device show wlan1": "10.0.0.23/24 | 10.0.0.24/24",
	}}
	addr, err := NewNMCLI(runner, 0).DeviceAddress(context.Background(), "wlan1")
	if err != nil || addr != "10.0.0.23" {
		t.Errorf("DeviceAddress() = %q, %v", addr, err)
	}
}
