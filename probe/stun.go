package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

// STUNObserver discovers the public address through STUN binding requests.
// The status view uses it when the HTTP endpoint is unreachable.
type STUNObserver struct {
	Servers []string
	Timeout time.Duration
}

// Observe returns the public IP mapped by the first server that answers.
func (o *STUNObserver) Observe(ctx context.Context) (string, error) {
	if len(o.Servers) == 0 {
		return "", errors.New("no STUN servers configured")
	}
	var lastErr error
	for _, server := range o.Servers {
		addr, err := bindingRequest(ctx, server, o.Timeout)
		if err != nil {
			lastErr = fmt.Errorf("stun %s: %w", server, err)
			continue
		}
		return hostOnly(addr), nil
	}
	return "", lastErr
}

func stunURI(server string) string {
	s := strings.TrimSpace(server)
	if !strings.HasPrefix(s, "stun:") {
		s = "stun:" + s
	}
	return s
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func bindingRequest(ctx context.Context, server string, timeout time.Duration) (string, error) {
	if strings.TrimSpace(server) == "" {
		return "", errors.New("empty server")
	}
	uri, err := stun.ParseURI(stunURI(server))
	if err != nil {
		return "", err
	}
	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", err
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan stun.XORMappedAddress, 1)
	fail := make(chan error, 2)

	go func() {
		var addr stun.XORMappedAddress
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			if err := addr.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- addr
		})
		if err != nil {
			fail <- err
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case addr := <-result:
		return addr.String(), nil
	case err := <-fail:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
