package cache

import (
	"net/url"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "simple endpoint no params",
			key: Key{
				Endpoint: "/api/invoices/",
			},
			want: "pagefeed:api/invoices",
		},
		{
			name: "endpoint with host",
			key: Key{
				Host:     "localhost:5000",
				Endpoint: "/api/customers",
			},
			want: "pagefeed:localhost:5000:api/customers",
		},
		{
			name: "endpoint with query params",
			key: Key{
				Endpoint: "/api/invoices",
				QueryParams: url.Values{
					"status": []string{"paid"},
				},
			},
			want: "pagefeed:api/invoices:status=paid",
		},
		{
			name: "multiple query params (sorted)",
			key: Key{
				Endpoint: "/api/invoices",
				QueryParams: url.Values{
					"size":   []string{"20"},
					"page":   []string{"2"},
					"status": []string{"paid"},
				},
			},
			want: "pagefeed:api/invoices:page=2:size=20:status=paid",
		},
		{
			name: "repeated query values (sorted)",
			key: Key{
				Endpoint: "/api/payments",
				QueryParams: url.Values{
					"method": []string{"cash", "bank"},
				},
			},
			want: "pagefeed:api/payments:method=bank,cash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.key.String()
			if got != tt.want {
				t.Errorf("Key.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeyFromURL(t *testing.T) {
	u, err := url.Parse("http://localhost:5000/api/invoices?size=20&page=3")
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}

	got := KeyFromURL(u).String()
	want := "pagefeed:localhost:5000:api/invoices:page=3:size=20"
	if got != want {
		t.Errorf("KeyFromURL().String() = %v, want %v", got, want)
	}
}

// TestKey_Determinism ensures same input always produces same key
func TestKey_Determinism(t *testing.T) {
	key := Key{
		Host:     "localhost:5000",
		Endpoint: "/api/invoices",
		QueryParams: url.Values{
			"status": []string{"paid"},
			"page":   []string{"1"},
			"size":   []string{"20"},
		},
	}

	first := key.String()
	for i := 0; i < 10; i++ {
		if result := key.String(); result != first {
			t.Errorf("result[%d] = %v, want %v (not deterministic)", i, result, first)
		}
	}
}
