package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoadDefaults(t *testing.T) {
	Convey("Given no file or env overrides", t, func() {
		t.Setenv("RATER_CONFIG", "")

		cfg, err := Load(context.Background())

		Convey("Then defaults should be returned", func() {
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":9080")
			So(cfg.DBPath, ShouldEqual, "rater.db")
			So(cfg.QueueSize, ShouldEqual, 10_000)
			So(cfg.WorkerCount, ShouldBeGreaterThan, 0)
			So(cfg.GenerationTimeoutSeconds, ShouldEqual, 60)
		})
	})
}

func TestLoadEnvOverrides(t *testing.T) {
	Convey("Given env overrides with the RATER_ prefix", t, func() {
		t.Setenv("RATER_CONFIG", "")
		t.Setenv("RATER_ADDR", ":7070")
		t.Setenv("RATER_QUEUE_SIZE", "42")
		t.Setenv("RATER_GENAI_MODEL", "test-model")

		cfg, err := Load(context.Background())

		Convey("Then env values should win over defaults", func() {
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":7070")
			So(cfg.QueueSize, ShouldEqual, 42)
			So(cfg.GenAIModel, ShouldEqual, "test-model")
		})
	})
}

func TestLoadFile(t *testing.T) {
	Convey("Given a YAML config file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "rater.yaml")
		yaml := "addr: \":6060\"\nworker_count: 3\nauth_tokens:\n  secret-token: rater-1\n"
		So(os.WriteFile(path, []byte(yaml), 0o600), ShouldBeNil)
		t.Setenv("RATER_CONFIG", path)

		cfg, err := Load(context.Background())

		Convey("Then file values should be applied", func() {
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":6060")
			So(cfg.WorkerCount, ShouldEqual, 3)
			So(cfg.AuthTokens["secret-token"], ShouldEqual, "rater-1")
		})
	})
}

func TestLoadValidation(t *testing.T) {
	Convey("Given invalid settings", t, func() {
		t.Setenv("RATER_CONFIG", "")

		Convey("When addr is empty", func() {
			cfg := New()
			cfg.Addr = ""
			So(errors.Is(cfg.validate(), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When queue_size is not positive", func() {
			cfg := New()
			cfg.QueueSize = 0
			So(errors.Is(cfg.validate(), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When worker_count is not positive", func() {
			cfg := New()
			cfg.WorkerCount = -1
			So(errors.Is(cfg.validate(), ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
