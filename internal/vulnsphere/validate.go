package vulnsphere

import (
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)

// ValidateUsername checks the username rule enforced by the create-user form.
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username must be 3-50 characters: letters, numbers and underscores only")
	}
	return nil
}

// ValidateCSVFilename accepts only .csv uploads for bulk import.
func ValidateCSVFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("please select a file to import")
	}
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return fmt.Errorf("please select a CSV file")
	}
	return nil
}

// ValidateTemplateFilename accepts the template formats the report engine renders.
func ValidateTemplateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("please select a template file")
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".docx", ".html":
		return nil
	}
	return fmt.Errorf("template must be a .docx or .html file")
}

// ValidateTemplateContent sniffs the uploaded bytes so a renamed file is
// caught before upload. A .docx is a zip container; an .html template is
// any text, since it may open with template directives rather than markup.
func ValidateTemplateContent(name string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("template file is empty")
	}
	mimeType := http.DetectContentType(data)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".docx":
		if mimeType != "application/zip" {
			return fmt.Errorf("file is not a valid .docx document (detected %s)", mimeType)
		}
	case ".html":
		if !strings.HasPrefix(mimeType, "text/") {
			return fmt.Errorf("file is not a text template (detected %s)", mimeType)
		}
	}
	return nil
}
