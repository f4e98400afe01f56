package validate

import "testing"

func TestUsername(t *testing.T) {
	if _, err := Username("admin_01"); err != nil {
		t.Errorf("valid username rejected: %v", err)
	}
	for _, bad := range []string{"ab", "user name", "admin;--", ""} {
		if _, err := Username(bad); err == nil {
			t.Errorf("Username(%q) accepted", bad)
		}
	}
}

func TestPersonName(t *testing.T) {
	got, err := PersonName("  budi  santoso ")
	if err != nil {
		t.Fatalf("valid name rejected: %v", err)
	}
	if got != "Budi Santoso" {
		t.Errorf("normalized name = %q, want %q", got, "Budi Santoso")
	}

	if _, err := PersonName("O'Connor-Smith Jr."); err != nil {
		t.Errorf("name with punctuation rejected: %v", err)
	}
	for _, bad := range []string{"X", "<script>", "123"} {
		if _, err := PersonName(bad); err == nil {
			t.Errorf("PersonName(%q) accepted", bad)
		}
	}
}

func TestID(t *testing.T) {
	if id, err := ID(" 42 "); err != nil || id != 42 {
		t.Errorf("ID(\" 42 \") = %d, %v", id, err)
	}
	for _, bad := range []string{"0", "-1", "abc", ""} {
		if _, err := ID(bad); err == nil {
			t.Errorf("ID(%q) accepted", bad)
		}
	}
}

func TestMonth(t *testing.T) {
	if _, err := Month("2026-08"); err != nil {
		t.Errorf("valid month rejected: %v", err)
	}
	for _, bad := range []string{"2026-13", "2026-0", "26-08", "2026/08"} {
		if _, err := Month(bad); err == nil {
			t.Errorf("Month(%q) accepted", bad)
		}
	}
}
