package ptysession

import "testing"

func TestContainsDSRQuery(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"ESC[6n", []byte("\x1b[6n"), true},
		{"ESC[?6n", []byte("\x1b[?6n"), true},
		{"mixed content with DSR", []byte("text\x1b[6nmore"), true},
		{"no escape", []byte("hello world"), false},
		{"partial ESC[6", []byte("\x1b[6"), false},
		{"ESC[c is not DSR", []byte("\x1b[c"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := containsDSRQuery(tt.data); got != tt.want {
				t.Errorf("containsDSRQuery(%q) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}

func TestContainsDA1Query(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"ESC[c (DA1 no param)", []byte("\x1b[c"), true},
		{"ESC[0c (DA1 explicit 0)", []byte("\x1b[0c"), true},
		{"mixed with DA1", []byte("text\x1b[cmore"), true},
		{"both DSR and DA1", []byte("\x1b[6n\x1b[c"), true},
		{"no escape", []byte("hello world"), false},
		{"ESC[1c is cursor forward, not DA1", []byte("\x1b[1c"), false},
		{"ESC[2c is cursor forward, not DA1", []byte("\x1b[2c"), false},
		{"partial ESC[", []byte("\x1b["), false},
		{"empty data", []byte{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := containsDA1Query(tt.data); got != tt.want {
				t.Errorf("containsDA1Query(%q) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}

func TestSession_RespondToTerminalQueries_NilHandleIsNoop(t *testing.T) {
	s := &Session{}
	s.respondToTerminalQueries([]byte("\x1b[6n"))
}
