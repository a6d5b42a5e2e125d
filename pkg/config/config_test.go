package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	valid bool
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
	}
	s.valid = true
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("PARKWATCH_TEST_NAME", "north")
	path := writeFile(t, "name: ${PARKWATCH_TEST_NAME}\nport: 9000\n")

	var s sample
	if err := Load(path, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "north" || s.Port != 9000 || !s.valid {
		t.Errorf("loaded = %+v", s)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := writeFile(t, "name: x\nprot: 9000\n")
	var s sample
	if err := Load(path, &s); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoad_ValidationFails(t *testing.T) {
	path := writeFile(t, "name: x\n")
	var s sample
	if err := Load(path, &s); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	path := writeFile(t, "")
	s := sample{Port: 8080}
	if err := Load(path, &s); err != nil {
		t.Fatal(err)
	}
	if s.Port != 8080 {
		t.Errorf("port = %d, want default 8080", s.Port)
	}
}

func TestLoadWithDefaults_Fallback(t *testing.T) {
	def := writeFile(t, "port: 7000\n")
	var s sample
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), def, &s); err != nil {
		t.Fatal(err)
	}
	if s.Port != 7000 {
		t.Errorf("port = %d", s.Port)
	}
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), "", &s); err == nil {
		t.Error("expected error without default file")
	}
}
