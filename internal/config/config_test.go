package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		LogDir:                 "/home/user/.local/share/vidpair/log",
		RetentionWindowSeconds: 43200,
		MatchWindowMinutes:     30,
		Store: StoreConfig{
			Type:     "dynamodb",
			Table:    "arrival-records",
			Endpoint: "http://localhost:8000",
		},
		Runner: RunnerConfig{
			Type:           "ecs",
			Cluster:        "merge-cluster",
			TaskDefinition: "video-merge",
			ContainerName:  "merger",
			Subnets:        []string{"subnet-a", "subnet-b"},
			SecurityGroups: []string{"sg-1"},
		},
		AWS:   AWSConfig{Region: "eu-west-1"},
		Queue: QueueConfig{URL: "https://sqs.eu-west-1.amazonaws.com/1/uploads", WaitTimeSeconds: 10},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.RetentionWindowSeconds != 43200 {
		t.Errorf("RetentionWindowSeconds = %d, want %d", got.RetentionWindowSeconds, 43200)
	}
	if got.MatchWindowMinutes != 30 {
		t.Errorf("MatchWindowMinutes = %d, want %d", got.MatchWindowMinutes, 30)
	}
	if got.Store.Type != "dynamodb" {
		t.Errorf("Store.Type = %q, want %q", got.Store.Type, "dynamodb")
	}
	if got.Store.Table != "arrival-records" {
		t.Errorf("Store.Table = %q, want %q", got.Store.Table, "arrival-records")
	}
	if got.Store.Endpoint != "http://localhost:8000" {
		t.Errorf("Store.Endpoint = %q, want %q", got.Store.Endpoint, "http://localhost:8000")
	}
	if got.Runner.Type != "ecs" {
		t.Errorf("Runner.Type = %q, want %q", got.Runner.Type, "ecs")
	}
	if len(got.Runner.Subnets) != 2 {
		t.Fatalf("len(Runner.Subnets) = %d, want 2", len(got.Runner.Subnets))
	}
	if got.AWS.Region != "eu-west-1" {
		t.Errorf("AWS.Region = %q, want %q", got.AWS.Region, "eu-west-1")
	}
	if got.Queue.WaitTimeSeconds != 10 {
		t.Errorf("Queue.WaitTimeSeconds = %d, want %d", got.Queue.WaitTimeSeconds, 10)
	}
}

func TestManager_Read_AppliesDefaults(t *testing.T) {
	in := strings.NewReader(`
[store]
type = "memory"

[runner]
type = "memory"
`)
	m := &Manager{}
	got, err := m.Read(in)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.RetentionWindowSeconds != DefaultRetentionWindowSeconds {
		t.Errorf("RetentionWindowSeconds = %d, want %d", got.RetentionWindowSeconds, DefaultRetentionWindowSeconds)
	}
	if got.MatchWindowMinutes != DefaultMatchWindowMinutes {
		t.Errorf("MatchWindowMinutes = %d, want %d", got.MatchWindowMinutes, DefaultMatchWindowMinutes)
	}
	if got.Queue.WaitTimeSeconds != 20 {
		t.Errorf("Queue.WaitTimeSeconds = %d, want %d", got.Queue.WaitTimeSeconds, 20)
	}
	if got.RetentionWindow() != 24*time.Hour {
		t.Errorf("RetentionWindow() = %v, want %v", got.RetentionWindow(), 24*time.Hour)
	}
	if got.MatchWindow() != 15*time.Minute {
		t.Errorf("MatchWindow() = %v, want %v", got.MatchWindow(), 15*time.Minute)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/vidpair")

	if cfg.LogDir != "/data/vidpair/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/vidpair/log")
	}
	if cfg.RetentionWindowSeconds != DefaultRetentionWindowSeconds {
		t.Errorf("RetentionWindowSeconds = %d, want %d", cfg.RetentionWindowSeconds, DefaultRetentionWindowSeconds)
	}
	if cfg.Store.Type != "memory" {
		t.Errorf("Store.Type = %q, want %q", cfg.Store.Type, "memory")
	}
	if cfg.Runner.Type != "memory" {
		t.Errorf("Runner.Type = %q, want %q", cfg.Runner.Type, "memory")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "vidpair.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "vidpair.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "vidpair.toml")
		cfg := NewConfig(dir)
		cfg.Store = StoreConfig{Type: "sqlite", DataDir: filepath.Join(dir, "db")}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Store.Type != "sqlite" {
			t.Errorf("Store.Type = %q, want %q", got.Store.Type, "sqlite")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/vidpair.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
