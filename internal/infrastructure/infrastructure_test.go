package infrastructure_test

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/kirill555101/paperclip/internal/config"
	"github.com/kirill555101/paperclip/internal/infrastructure"
	"github.com/kirill555101/paperclip/internal/jobs"
)

const attachmentsTOML = `
[logging]
level = "error"

[processor]
runner = "native"

[[attachments]]
class = "User"
name = "avatar"
styles = [{ name = "thumb", geometry = "16x16#", format = "png" }]
`

func loadConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	body := attachmentsTOML + extra
	body = strings.ReplaceAll(body, "{{dir}}", filepath.ToSlash(dir))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}
	return cfg
}

func TestFilesystemInfrastructure(t *testing.T) {
	cfg := loadConfig(t, `
[storage]
backend = "filesystem"
base_path = "{{dir}}/attachments"
`)

	infra, err := infrastructure.New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if infra.Database != nil {
		t.Error("memory records should not open a database")
	}
	if infra.Deferred != nil || infra.Queue != nil {
		t.Error("filesystem backend should not create an upload queue")
	}

	if err := infra.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := infra.StartWorkers(); err != nil {
		t.Fatalf("StartWorkers() failed: %v", err)
	}
	infra.Lifecycle.WaitForStartup()
	defer infra.Shutdown()

	ctx := context.Background()
	m, err := infra.Records.Create(ctx, "User")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	a, err := m.Attachment("avatar")
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "face.png")
	if err := imaging.Save(imaging.New(40, 20, color.NRGBA{G: 200, A: 255}), src); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(src)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := a.Assign(ctx, f); err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}
	if err := infra.Records.Save(ctx, m); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	ok, err := a.Exists(ctx, "thumb")
	if err != nil || !ok {
		t.Errorf("Exists(thumb) = %v, %v", ok, err)
	}

	families, err := infra.Metrics.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == cfg.Metrics.Namespace+"_operation_duration_seconds" {
			found = true
		}
	}
	if !found {
		t.Error("storage latency metric not registered")
	}
}

func TestMetricsDisabled(t *testing.T) {
	cfg := loadConfig(t, `
[storage]
base_path = "{{dir}}/attachments"

[metrics]
enabled = false
`)

	infra, err := infrastructure.New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if infra.Metrics != nil {
		t.Error("Metrics should be nil when disabled")
	}
}

func TestDeferredInfrastructure(t *testing.T) {
	cfg := loadConfig(t, `
[storage]
backend = "deferred"

[storage.remote]
endpoint = "localhost:9000"
bucket = "attachments"
access_key = "key"
secret_key = "secret"

[storage.deferred]
staging_path = "{{dir}}/staging"
queue = "memory"
`)

	infra, err := infrastructure.New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if infra.Deferred == nil {
		t.Fatal("Deferred not created")
	}
	if _, ok := infra.Queue.(*jobs.MemoryQueue); !ok {
		t.Errorf("Queue = %T, want *jobs.MemoryQueue", infra.Queue)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if n := infra.Drain(ctx); n != 0 {
		t.Errorf("Drain() = %d on an empty queue", n)
	}
}

func TestCachedInfrastructure(t *testing.T) {
	for _, store := range []string{"lru", "filesystem", "redis"} {
		t.Run(store, func(t *testing.T) {
			cfg := loadConfig(t, `
[storage]
backend = "cached"

[storage.remote]
endpoint = "localhost:9000"
bucket = "attachments"
access_key = "key"
secret_key = "secret"

[storage.cache]
store = "`+store+`"
path = "{{dir}}/cache"
redis_addr = "localhost:6379"
`)

			infra, err := infrastructure.New(cfg)
			if err != nil {
				t.Fatalf("New() failed: %v", err)
			}
			if infra.Storage == nil {
				t.Error("Storage not created")
			}
		})
	}
}

func TestDuplicateAttachmentFails(t *testing.T) {
	cfg := loadConfig(t, `
[storage]
base_path = "{{dir}}/attachments"
`)
	cfg.Attachments = append(cfg.Attachments, cfg.Attachments[0])

	if _, err := infrastructure.New(cfg); err == nil {
		t.Error("New() should reject a duplicate attachment")
	}
}
