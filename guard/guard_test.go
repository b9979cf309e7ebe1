package guard

import (
	"errors"
	"net"
	"strings"
	"testing"
)

func TestSafePath(t *testing.T) {
	tests := []struct {
		base, input string
		wantErr     bool
	}{
		{"/exports", "kango-hops-20260101-120000.json", false},
		{"/exports", "sub/file.json", false},
		{"/exports", "../etc/passwd", true},
		{"/exports", "a/../../outside", true},
	}
	for _, tt := range tests {
		_, err := SafePath(tt.base, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q, %q) error=%v, wantErr=%v", tt.base, tt.input, err, tt.wantErr)
		}
	}
	if got, _ := SafePath("/exports", "/abs.json"); got != "/exports/abs.json" {
		t.Errorf("absolute name not rebased: %s", got)
	}
}

func TestReadLimited(t *testing.T) {
	data := strings.Repeat("x", 100)
	got, err := ReadLimited(strings.NewReader(data), 100)
	if err != nil || len(got) != 100 {
		t.Fatalf("at limit: %d bytes, %v", len(got), err)
	}
	if _, err := ReadLimited(strings.NewReader(data), 99); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("over limit: %v", err)
	}
}

func TestValidateID(t *testing.T) {
	for _, ok := range []string{"0190f5c2-7b1e-7c3a-9d5e-1f2a3b4c5d6e", "h1", "a.b_c"} {
		if err := ValidateID(ok); err != nil {
			t.Errorf("ValidateID(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "../x", "has space", strings.Repeat("a", 129)} {
		if err := ValidateID(bad); err == nil {
			t.Errorf("ValidateID(%q): want error", bad)
		}
	}
}

func TestValidatePageURL(t *testing.T) {
	tests := []struct {
		url          string
		allowPrivate bool
		want         error
	}{
		{"https://93.184.215.14/post", false, nil},
		{"http://127.0.0.1:8080/dev", true, nil},
		{"http://127.0.0.1:8080/dev", false, ErrPrivateAddress},
		{"http://10.0.0.1/internal", false, ErrPrivateAddress},
		{"http://[::1]/api", false, ErrPrivateAddress},
		{"file:///etc/passwd", true, ErrUnsafeScheme},
		{"javascript:alert(1)", true, ErrUnsafeScheme},
	}
	for _, tt := range tests {
		err := ValidatePageURL(tt.url, tt.allowPrivate)
		if tt.want == nil && err != nil || tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("ValidatePageURL(%q, %v) = %v, want %v", tt.url, tt.allowPrivate, err, tt.want)
		}
	}
	if err := ValidatePageURL("https:///nohost", true); err == nil {
		t.Error("URL without host accepted")
	}
}

func TestIsPrivateIP(t *testing.T) {
	for ip, want := range map[string]bool{
		"127.0.0.1": true, "10.1.2.3": true, "172.16.0.1": true, "192.168.0.1": true,
		"::1": true, "0.0.0.0": true, "8.8.8.8": false, "1.1.1.1": false,
	} {
		if got := isPrivateIP(net.ParseIP(ip)); got != want {
			t.Errorf("isPrivateIP(%s) = %v, want %v", ip, got, want)
		}
	}
}
