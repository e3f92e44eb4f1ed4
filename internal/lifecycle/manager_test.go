package lifecycle

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/offgate/offgate/internal/cache"
	"github.com/offgate/offgate/internal/config"
	"github.com/offgate/offgate/internal/notify"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newManager(t *testing.T, upstream string, version string, precache []string) (*Manager, cache.Store) {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store error: %v", err)
	}
	app := config.AppConfig{
		Version:       version,
		Upstream:      upstream,
		ShellDocument: "/index.html",
		Precache:      precache,
	}
	logger := discardLogger()
	return NewManager(app, store, &http.Client{}, logger, notify.NewNotifier(logger)), store
}

func TestInstallPopulatesStaticPartition(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>shell</html>"))
	}))
	defer upstream.Close()

	mgr, store := newManager(t, upstream.URL, "v1", []string{"/", "/index.html"})
	if err := mgr.Install(context.Background()); err != nil {
		t.Fatalf("install error: %v", err)
	}
	if mgr.State() != StateInstalled {
		t.Fatalf("expected installed state, got %s", mgr.State())
	}

	key, _ := cache.NewKey("GET", upstream.URL+"/index.html")
	snap, err := store.Get(context.Background(), "static-assets@v1", key)
	if err != nil {
		t.Fatalf("precached asset missing: %v", err)
	}
	if string(snap.Body) != "<html>shell</html>" {
		t.Fatalf("unexpected precached body: %s", string(snap.Body))
	}
}

func TestInstallFailureIsFatalForVersion(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.js" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	mgr, _ := newManager(t, upstream.URL, "v1", []string{"/", "/broken.js"})
	err := mgr.Install(context.Background())
	if !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("expected ErrInstallFailed, got %v", err)
	}
	if mgr.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", mgr.State())
	}

	if err := mgr.Activate(context.Background()); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("failed version must not activate, got %v", err)
	}
}

func TestActivateRemovesExactlyStalePartitions(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	mgr, store := newManager(t, upstream.URL, "v2", []string{"/"})
	ctx := context.Background()

	// 旧版本与当前版本的分区同时在盘。
	for _, name := range []string{"static-assets@v1", "api-data@v1", "api-data@v2"} {
		if err := store.Open(ctx, name); err != nil {
			t.Fatalf("open %s error: %v", name, err)
		}
	}

	if err := mgr.Install(ctx); err != nil {
		t.Fatalf("install error: %v", err)
	}
	if err := mgr.Activate(ctx); err != nil {
		t.Fatalf("activate error: %v", err)
	}
	if !mgr.Active() {
		t.Fatalf("manager should be active")
	}

	names, err := store.Names(ctx)
	if err != nil {
		t.Fatalf("names error: %v", err)
	}
	expected := map[string]bool{"static-assets@v2": true, "api-data@v2": true}
	if len(names) != len(expected) {
		t.Fatalf("expected only current-version partitions, got %v", names)
	}
	for _, name := range names {
		if !expected[name] {
			t.Fatalf("stale partition survived activation: %s", name)
		}
	}
}

func TestActivateRequiresInstall(t *testing.T) {
	mgr, _ := newManager(t, "http://app.local", "v1", nil)
	if err := mgr.Activate(context.Background()); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("activation without install should fail, got %v", err)
	}
}

func TestSkipWaitingActivatesImmediately(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	mgr, _ := newManager(t, upstream.URL, "v1", []string{"/"})
	ctx := context.Background()
	if err := mgr.Install(ctx); err != nil {
		t.Fatalf("install error: %v", err)
	}
	if err := mgr.SkipWaiting(ctx); err != nil {
		t.Fatalf("skip waiting error: %v", err)
	}
	if !mgr.Active() {
		t.Fatalf("skip waiting should activate the version")
	}
}
