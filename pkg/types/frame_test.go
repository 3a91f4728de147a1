package types

import "testing"

func TestHasSOI(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want bool
	}{
		{"valid jpeg start", []byte{0xFF, 0xD8, 0xFF, 0xE0}, true},
		{"exactly the marker", []byte{0xFF, 0xD8}, true},
		{"wrong second byte", []byte{0xFF, 0xD9}, false},
		{"not a marker", []byte{0x00, 0x01, 0x02}, false},
		{"one byte", []byte{0xFF}, false},
		{"empty", nil, false},
	}

	for _, tc := range cases {
		if got := HasSOI(tc.data); got != tc.want {
			t.Errorf("%s: HasSOI() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
