package conv

import "testing"

func TestAppendUint(t *testing.T) {
	cases := []struct {
		n    uint64
		want string
	}{
		{0, "0"},
		{7, "7"},
		{1425, "1425"},
		{18446744073709551615, "18446744073709551615"},
	}
	for _, c := range cases {
		if got := string(AppendUint(nil, c.n)); got != c.want {
			t.Errorf("AppendUint(%d)=%q, want %q", c.n, got, c.want)
		}
	}
}

func TestAppendInt(t *testing.T) {
	if got := string(AppendInt([]byte("dev="), -42)); got != "dev=-42" {
		t.Errorf("got %q", got)
	}
	if got := string(AppendInt(nil, 0)); got != "0" {
		t.Errorf("got %q", got)
	}
}

func TestAppendU32Hex(t *testing.T) {
	if got := string(AppendU32Hex(nil, 0xB007C0DE)); got != "B007C0DE" {
		t.Errorf("got %q", got)
	}
	if got := string(AppendU32Hex(nil, 0x1)); got != "00000001" {
		t.Errorf("got %q", got)
	}
}
