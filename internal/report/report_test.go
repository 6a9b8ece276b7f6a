package report

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Holdings Pte. Ltd.", "Acme_Holdings_Pte_Ltd"},
		{"  Widget-Co_Intl  ", "Widget-Co_Intl"},
		{"A&B (Asia) / SG", "AB_Asia__SG"},
		{"Société Générale", "Société_Générale"},
		{"../../etc/passwd", "etcpasswd"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOutputPath(t *testing.T) {
	got := OutputPath("reports", "Acme Holdings")
	want := filepath.Join("reports", "Acme_Holdings_Forensic_Report.md")
	if got != want {
		t.Errorf("OutputPath = %q, want %q", got, want)
	}

	if got := OutputPath("out", "???"); got != filepath.Join("out", "Unnamed_Company_Forensic_Report.md") {
		t.Errorf("OutputPath for unusable name = %q", got)
	}
}

func TestWrite_CreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reports", "Acme_Forensic_Report.md")

	if err := Write(path, "# Report"); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if string(data) != "# Report\n" {
		t.Errorf("content = %q", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestWrite_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.md")
	if err := Write(path, "old\n"); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, "new\n"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "new\n" {
		t.Errorf("content = %q, want new", data)
	}
}
