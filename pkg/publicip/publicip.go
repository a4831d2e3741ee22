// Package publicip detects the server's public IPv4 address for use in
// client config Endpoint lines.
package publicip

import (
	"context"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"awgman/pkg/logging"
)

// Fallback is used when every detection service fails; client configs then
// carry an obvious placeholder instead of a wrong address.
const Fallback = "YOUR_SERVER_IP"

var services = []string{
	"http://ifconfig.me",
	"https://api.ipify.org",
	"https://ident.me",
}

// Detect queries the detection services in order and returns the first valid
// IPv4 address. Failures are tolerated per service; if all fail, Fallback is
// returned.
func Detect(ctx context.Context) string {
	client := &http.Client{Timeout: 5 * time.Second}
	for _, svc := range services {
		ip, err := fetch(ctx, client, svc)
		if err != nil {
			logging.Debugf("public IP lookup via %s failed: %v", svc, err)
			continue
		}
		if addr, perr := netip.ParseAddr(ip); perr == nil && addr.Is4() {
			logging.Infof("detected public IP %s", ip)
			return ip
		}
	}
	logging.Warnf("public IP detection failed, using placeholder %q", Fallback)
	return Fallback
}

func fetch(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}
