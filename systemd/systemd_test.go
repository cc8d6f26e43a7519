package systemd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yllada/travel-router/execx"
)

type fakeRunner struct {
	out   string
	err   error
	calls []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	_, err := f.Output(ctx, name, args...)
	return err
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	return f.out, f.err
}

func TestSystemctl_ActiveState(t *testing.T) {
	tests := []struct {
		name    string
		runner  *fakeRunner
		want    string
		running bool
		wantErr bool
	}{
		{"active", &fakeRunner{out: "active"}, "active", true, false},
		{
			name:   "inactive exits non-zero",
			runner: &fakeRunner{err: &execx.CommandError{Name: "systemctl", Output: "inactive", Err: errors.New("exit status 3")}},
			want:   "inactive",
		},
		{
			name:    "missing binary",
			runner:  &fakeRunner{err: &execx.CommandError{Name: "systemctl", Err: errors.New("executable file not found")}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSystemctl(tt.runner)
			got, err := s.ActiveState(context.Background(), "nordvpnd.service")
			if (err != nil) != tt.wantErr {
				t.Fatalf("ActiveState() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ActiveState() = %q, want %q", got, tt.want)
			}
			running, _ := Running(context.Background(), s, "nordvpnd.service")
			if running != tt.running {
				t.Errorf("Running() = %v, want %v", running, tt.running)
			}
			if tt.runner.calls[0] != "systemctl is-active nordvpnd.service" {
				t.Errorf("call = %q", tt.runner.calls[0])
			}
		})
	}
}

func TestSystemctl_Start(t *testing.T) {
	r := &fakeRunner{}
	if err := NewSystemctl(r).Start(context.Background(), "nordvpnd.service"); err != nil {
		t.Fatal(err)
	}
	if r.calls[0] != "systemctl start nordvpnd.service" {
		t.Errorf("call = %q", r.calls[0])
	}

	r = &fakeRunner{err: errors.New("Failed to start nordvpnd.service: Unit not found.")}
	if err := NewSystemctl(r).Start(context.Background(), "nordvpnd.service"); err == nil {
		t.Error("expected error")
	}
}
