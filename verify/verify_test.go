package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/yllada/travel-router/common"
)

type fakeAP struct {
	active   bool
	stateErr error
	upErr    error
	ups      int
}

func (f *fakeAP) ProfileActive(ctx context.Context, name string) (bool, error) {
	return f.active, f.stateErr
}

func (f *fakeAP) Up(ctx context.Context, name, iface string) error {
	f.ups++
	if f.upErr != nil {
		return f.upErr
	}
	f.active = true
	return nil
}

type fakeForwarding struct {
	on      bool
	enables int
}

func (f *fakeForwarding) Enabled(ctx context.Context) (bool, error) { return f.on, nil }

func (f *fakeForwarding) Enable(ctx context.Context) error {
	f.enables++
	f.on = true
	return nil
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name         string
		ap           *fakeAP
		fwd          *fakeForwarding
		wantAPOk     bool
		wantAPFix    bool
		wantFwdFix   bool
		wantWarnings []common.WarningKind
	}{
		{
			name:     "healthy",
			ap:       &fakeAP{active: true},
			fwd:      &fakeForwarding{on: true},
			wantAPOk: true,
		},
		{
			name:         "ap down",
			ap:           &fakeAP{},
			fwd:          &fakeForwarding{on: true},
			wantAPOk:     true,
			wantAPFix:    true,
			wantWarnings: []common.WarningKind{common.ApDownWarning},
		},
		{
			name:         "forwarding off",
			ap:           &fakeAP{active: true},
			fwd:          &fakeForwarding{},
			wantAPOk:     true,
			wantFwdFix:   true,
			wantWarnings: []common.WarningKind{common.ForwardingResetWarning},
		},
		{
			name:         "both broken, ap repair fails",
			ap:           &fakeAP{upErr: errors.New("Error: Connection activation failed")},
			fwd:          &fakeForwarding{},
			wantFwdFix:   true,
			wantWarnings: []common.WarningKind{common.ApDownWarning, common.ForwardingResetWarning},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.ap, tt.fwd, "travel-ap", "wlan0").Verify(context.Background())
			if r.APOk != tt.wantAPOk || r.APRepaired != tt.wantAPFix {
				t.Errorf("AP ok=%v repaired=%v, want %v/%v", r.APOk, r.APRepaired, tt.wantAPOk, tt.wantAPFix)
			}
			if !r.ForwardingOk || r.ForwardingRepaired != tt.wantFwdFix {
				t.Errorf("forwarding ok=%v repaired=%v", r.ForwardingOk, r.ForwardingRepaired)
			}
			if len(r.Warnings) != len(tt.wantWarnings) {
				t.Fatalf("warnings = %v, want %v", r.Warnings, tt.wantWarnings)
			}
			for i, w := range r.Warnings {
				if w.Kind != tt.wantWarnings[i] {
					t.Errorf("warning %d = %v, want %v", i, w.Kind, tt.wantWarnings[i])
				}
			}
		})
	}
}

func TestVerify_IdempotentOnHealthySystem(t *testing.T) {
	ap := &fakeAP{}
	fwd := &fakeForwarding{}
	v := New(ap, fwd, "travel-ap", "wlan0")

	v.Verify(context.Background())
	second := v.Verify(context.Background())

	if ap.ups != 1 || fwd.enables != 1 {
		t.Errorf("repairs = %d/%d, want one each", ap.ups, fwd.enables)
	}
	if second.APRepaired || second.ForwardingRepaired || len(second.Warnings) != 0 {
		t.Errorf("second pass = %+v, want no changes", second)
	}
}
