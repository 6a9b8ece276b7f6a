// Package report names and writes forensic report files.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	Suffix       = "_Forensic_Report.md"
	fallbackName = "Unnamed_Company"
)

// SanitizeName keeps letters, digits, spaces, hyphens and underscores, trims
// the result and turns spaces into underscores.
func SanitizeName(company string) string {
	var b strings.Builder
	for _, r := range company {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
}

// OutputPath derives the report path for company inside dir.
func OutputPath(dir, company string) string {
	name := SanitizeName(company)
	if name == "" {
		name = fallbackName
	}
	return filepath.Join(dir, name+Suffix)
}

// Write stores content at path, creating parent directories. The file is
// replaced atomically.
func Write(path, content string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
