package config

import (
	"os"
	"path/filepath"
	"testing"
)

type testConf struct {
	Endpoint string `envconfig:"ENDPOINT" default:"http://localhost:8080"`
	APIKey   string `envconfig:"API_KEY"`
}

func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv("LOAN_ENDPOINT", "https://api.example.com")
	t.Setenv("LOAN_API_KEY", "secret")

	conf, err := New[testConf]("LOAN")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Endpoint != "https://api.example.com" {
		t.Errorf("Endpoint = %q, want https://api.example.com", conf.Endpoint)
	}
	if conf.APIKey != "secret" {
		t.Errorf("APIKey = %q, want secret", conf.APIKey)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	conf, err := New[testConf]("UNSET_PREFIX")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Endpoint != "http://localhost:8080" {
		t.Errorf("Endpoint = %q, want default http://localhost:8080", conf.Endpoint)
	}
}

func TestNewExportsEnvFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("FILE_TOKEN=from-file\n")
	if err := os.WriteFile(filepath.Join(dir, ".env"), content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FILE_TOKEN", "")
	t.Chdir(dir)

	type fileConf struct {
		Token string `envconfig:"FILE_TOKEN"`
	}
	conf, err := New[fileConf]("")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Token != "from-file" {
		t.Errorf("Token = %q, want from-file", conf.Token)
	}
}
