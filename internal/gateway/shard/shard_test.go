package shard

import (
	"context"
	"errors"
	"testing"

	"github.com/satmihir/photocache/internal/gateway"
	"github.com/satmihir/photocache/internal/gateway/memory"
	"github.com/satmihir/photocache/internal/testutil"
)

func backendOf(t *testing.T, backends []*Backend, storagePath string) *memory.AssetGateway {
	t.Helper()
	var owner *memory.AssetGateway
	for _, b := range backends {
		if mem := b.Gateway.(*memory.AssetGateway); mem.Has(storagePath) {
			if owner != nil {
				t.Fatalf("%s stored on more than one backend", storagePath)
			}
			owner = mem
		}
	}
	if owner == nil {
		t.Fatalf("%s not stored on any backend", storagePath)
	}
	return owner
}

func TestNew_RequiresBackends(t *testing.T) {
	if _, err := New(nil, nil, testutil.QuietLogger()); !errors.Is(err, ErrNoBackends) {
		t.Errorf("New(nil) error = %v, want ErrNoBackends", err)
	}
}

func TestGateway_StampStaysOnOneBackend(t *testing.T) {
	backends := newBackends("a", "b", "c")
	g, err := New(backends, nil, testutil.QuietLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	var first *memory.AssetGateway
	for i := 0; i < 5; i++ {
		p, err := g.Upload(ctx, []byte{byte(i)}, "stamps/s1")
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
		owner := backendOf(t, backends, p)
		if first == nil {
			first = owner
		} else if owner != first {
			t.Fatal("photos of one stamp split across backends")
		}

		data, err := g.Download(ctx, p)
		if err != nil || len(data) != 1 || data[0] != byte(i) {
			t.Fatalf("Download(%s) = %v, %v", p, data, err)
		}
	}
}

func TestGateway_DeleteRoutesToOwner(t *testing.T) {
	backends := newBackends("a", "b", "c")
	g, _ := New(backends, nil, testutil.QuietLogger())
	ctx := context.Background()

	p, err := g.Upload(ctx, []byte("x"), "/stamps//s2/")
	if err != nil {
		t.Fatal(err)
	}
	owner := backendOf(t, backends, p)
	if err := g.Delete(ctx, p); err != nil {
		t.Fatal(err)
	}
	if owner.Has(p) {
		t.Error("blob still present after Delete")
	}
}

func TestGateway_DownloadFallsBackAfterBackendAdded(t *testing.T) {
	backends := newBackends("a", "b")
	g, _ := New(backends, nil, testutil.QuietLogger())
	ctx := context.Background()

	// Find a stamp whose owner changes once backend "c" joins.
	grown := append(backends, NewBackend("c", memory.NewAssetGateway()))
	grownRouter := NewRouter(grown, nil)
	hint := ""
	for i := 0; hint == ""; i++ {
		h := "stamps/" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		if grownRouter.Rank(h, 1)[0].Name == "c" {
			hint = h
		}
	}

	p, err := g.Upload(ctx, []byte("old"), hint)
	if err != nil {
		t.Fatal(err)
	}
	g.Router().SetBackends(grown)

	data, err := g.Download(ctx, p)
	if err != nil {
		t.Fatalf("Download after rebalancing: %v", err)
	}
	if string(data) != "old" {
		t.Errorf("Download = %q, want %q", data, "old")
	}
}

func TestGateway_DownloadMissing(t *testing.T) {
	g, _ := New(newBackends("a", "b", "c"), nil, testutil.QuietLogger())
	if _, err := g.Download(context.Background(), "stamps/s1/none.jpg"); !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("Download error = %v, want ErrNotFound", err)
	}
}

func TestGateway_DownloadStopsOnHardError(t *testing.T) {
	backends := newBackends("a", "b")
	g, _ := New(backends, nil, testutil.QuietLogger())
	boom := errors.New("boom")
	for _, b := range backends {
		b.Gateway.(*memory.AssetGateway).SetDownloadError(boom)
	}
	if _, err := g.Download(context.Background(), "stamps/s1/x.jpg"); !errors.Is(err, boom) {
		t.Errorf("Download error = %v, want %v", err, boom)
	}
}
