// Package settings reads the user settings document.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DefaultCLIBinary is launched when no binary is configured.
const DefaultCLIBinary = "claude"

// Provider supplies the name of the CLI binary to launch for each task.
type Provider interface {
	CLIBinaryName() string
}

// Document is the subset of the settings document agentq reads.
type Document struct {
	CLIBinary string `json:"cli_binary"`
}

// File reads settings from a JSON document on every call, so edits made by
// the desktop shell take effect for the next task without a restart.
type File struct {
	Path     string
	Fallback string
}

// NewFile creates a settings reader for path. fallback is used when the file
// is missing, unreadable, or does not name a binary.
func NewFile(path, fallback string) *File {
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultCLIBinary
	}
	return &File{Path: path, Fallback: fallback}
}

// Read loads the settings document.
func (f *File) Read() (*Document, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return &doc, nil
}

// CLIBinaryName returns the configured CLI binary, or the fallback.
func (f *File) CLIBinaryName() string {
	if f.Path == "" {
		return f.Fallback
	}
	doc, err := f.Read()
	if err != nil {
		return f.Fallback
	}
	if name := strings.TrimSpace(doc.CLIBinary); name != "" {
		return name
	}
	return f.Fallback
}

// Static always returns the same binary name.
type Static string

// CLIBinaryName implements Provider.
func (s Static) CLIBinaryName() string {
	if s == "" {
		return DefaultCLIBinary
	}
	return string(s)
}
