package notify

import "testing"

func TestSocketURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		override string
		token    string
		want     string
		wantErr  bool
	}{
		{"http base", "http://127.0.0.1:8000", "", "abc", "ws://127.0.0.1:8000/api/v1/ws?token=abc", false},
		{"https base with path", "https://intake.example.com/", "", "t", "wss://intake.example.com/api/v1/ws?token=t", false},
		{"override keeps path", "http://x", "wss://push.example.com/socket", "t", "wss://push.example.com/socket?token=t", false},
		{"escapes token", "http://h", "", "a b&c", "ws://h/api/v1/ws?token=a+b%26c", false},
		{"bad scheme", "ftp://h", "", "t", "", true},
		{"no host", "http://", "", "t", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SocketURL(tt.base, tt.override, tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SocketURL error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SocketURL = %q, want %q", got, tt.want)
			}
		})
	}
}
