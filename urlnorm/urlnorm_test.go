package urlnorm

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "tracking params stripped and query sorted",
			in:   "https://Example.COM:443/a/?utm_source=x&b=2&a=1#frag",
			want: "https://example.com/a?a=1&b=2",
		},
		{
			name:    "userinfo rejected",
			in:      "http://u:p@host/x",
			wantErr: true,
		},
		{
			name: "default http port stripped",
			in:   "http://example.com:80/path/",
			want: "http://example.com/path",
		},
		{
			name:    "unsupported scheme rejected",
			in:      "ftp://example.com/file",
			wantErr: true,
		},
		{
			name: "root path keeps trailing slash",
			in:   "https://example.com",
			want: "https://example.com/",
		},
		{
			name: "non-tracking query kept, fbclid dropped",
			in:   "https://example.com/p?fbclid=123&id=9",
			want: "https://example.com/p?id=9",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got none", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"https://Example.COM:443/a/?utm_source=x&b=2&a=1#frag",
		"http://example.com:80/path/",
		"https://example.com/p?fbclid=123&id=9",
	}
	for _, in := range inputs {
		first, err := Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		second, err := Normalize(first)
		if err != nil {
			t.Fatalf("Normalize(%q) (second pass): %v", first, err)
		}
		if first != second {
			t.Fatalf("not idempotent: Normalize(%q)=%q, Normalize(%q)=%q", in, first, first, second)
		}
	}
}
