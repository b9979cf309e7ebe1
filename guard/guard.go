// Package guard validates untrusted input at kango's edges: export paths,
// import payloads, hop ids arriving over HTTP or MCP, and page URLs handed
// to the browser.
package guard

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// MaxImportBytes caps an import payload (8 MiB).
const MaxImportBytes int64 = 8 << 20

var (
	// ErrPathTraversal is returned when a user-supplied path escapes its base.
	ErrPathTraversal = errors.New("guard: path traversal detected")
	// ErrPrivateAddress is returned when a page URL targets a private or
	// loopback address and those are not allowed.
	ErrPrivateAddress = errors.New("guard: URL targets a private or loopback address")
	// ErrUnsafeScheme is returned when a page URL is not http or https.
	ErrUnsafeScheme = errors.New("guard: only http and https pages can be opened")
	// ErrTooLarge is returned by ReadLimited when the input exceeds its cap.
	ErrTooLarge = errors.New("guard: input too large")
)

// SafePath joins name under base and fails when the result would escape
// base.
func SafePath(base, name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrPathTraversal
	}
	cleaned := filepath.Join(base, filepath.Clean("/"+name))
	root := filepath.Clean(base)
	if cleaned != root && !strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// ReadLimited reads at most max bytes from r.
func ReadLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, max)
	}
	return data, nil
}

// ValidateID accepts hop ids: non-empty, at most 128 characters from
// [A-Za-z0-9_.-].
func ValidateID(s string) error {
	if s == "" {
		return errors.New("guard: empty id")
	}
	if len(s) > 128 {
		return errors.New("guard: id too long (max 128)")
	}
	for _, r := range s {
		if !isIDChar(r) {
			return fmt.Errorf("guard: invalid character %q in id", r)
		}
	}
	return nil
}

// ValidatePageURL checks that rawURL is an http(s) URL with a host. Unless
// allowPrivate is set, literal and resolved private or loopback addresses
// are refused.
func ValidatePageURL(rawURL string, allowPrivate bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("guard: invalid URL: %w", err)
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return errors.New("guard: URL has no host")
	}
	if allowPrivate {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrPrivateAddress
		}
		return nil
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		// Unresolvable hosts fail later, at navigation.
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return ErrPrivateAddress
		}
	}
	return nil
}

func isIDChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}

var privateNets = func() []*net.IPNet {
	var out []*net.IPNet
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7", "169.254.0.0/16"} {
		_, n, err := net.ParseCIDR(cidr)
		if err == nil {
			out = append(out, n)
		}
	}
	return out
}()

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
