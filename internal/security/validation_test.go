package security

import "testing"

func TestValidateUsername(t *testing.T) {
	v := NewValidator(32)

	cases := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"valid", "Player_One-1", false},
		{"too short", "ab", true},
		{"too long", stringOfLen(33, 'a'), true},
		{"bad chars", "player one", true},
		{"empty", "", true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := v.ValidateUsername(c.in)
			if (err != nil) != c.wantErr {
				t.Fatalf("ValidateUsername(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
			}
		})
	}
}

func TestValidateGroupName(t *testing.T) {
	v := NewValidator(24)

	cases := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"valid with space and hyphen", "Squad Alpha-1", false},
		{"too short", "ab", true},
		{"too long", stringOfLen(25, 'a'), true},
		{"bad chars underscore", "squad_alpha", true},
		{"bad chars punctuation", "squad!", true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := v.ValidateGroupName(c.in)
			if (err != nil) != c.wantErr {
				t.Fatalf("ValidateGroupName(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
			}
		})
	}
}

func stringOfLen(n int, b byte) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b
	}
	return string(buf)
}
