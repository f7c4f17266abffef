package controlplane

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/streamwarden/streamwarden/internal/config"
	"github.com/streamwarden/streamwarden/internal/pipeline"
)

const solarDef = `{
  "name": "solar_agg",
  "pipeline": [
    {"$source": {"connectionName": "sample_stream_solar"}},
    {"$merge": {"into": {"connectionName": "kgShardedCluster01", "db": "solar", "coll": "agg"}}}
  ]
}`

func writeDef(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write definition: %v", err)
	}
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	writeDef(t, dir, "solar_agg.json", solarDef)

	def, err := FileLoader{Dir: dir}.Load(context.Background(), "solar_agg")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def.Name != "solar_agg" || len(def.Pipeline) != 2 {
		t.Errorf("definition: got %+v", def)
	}
}

func TestFileLoader_FillsNameFromFile(t *testing.T) {
	dir := t.TempDir()
	writeDef(t, dir, "unnamed.json", `{"pipeline": [{"$source": {"connectionName": "s"}}]}`)

	def, err := FileLoader{Dir: dir}.Load(context.Background(), "unnamed")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def.Name != "unnamed" {
		t.Errorf("name: got %q, want filename-derived name", def.Name)
	}
}

func TestFileLoader_Missing(t *testing.T) {
	_, err := FileLoader{Dir: t.TempDir()}.Load(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFileLoader_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	writeDef(t, dir, "broken.json", `{not json`)

	_, err := FileLoader{Dir: dir}.Load(context.Background(), "broken")
	if err == nil {
		t.Fatal("expected decode error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("corrupt file must not read as not-found")
	}
}

func TestChainLoader_FileFirst(t *testing.T) {
	dir := t.TempDir()
	writeDef(t, dir, "solar_agg.json", solarDef)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API consulted despite local definition")
	}))
	defer srv.Close()

	chain := ChainLoader{FileLoader{Dir: dir}, newClient(srv)}
	def, err := chain.Load(context.Background(), "solar_agg")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def.Name != "solar_agg" {
		t.Errorf("name: got %q", def.Name)
	}
}

func TestChainLoader_FallsBackToAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": "deployed_only", "pipeline": [{"$source": {"connectionName": "s"}}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	chain := ChainLoader{FileLoader{Dir: t.TempDir()}, newClient(srv)}
	def, err := chain.Load(context.Background(), "deployed_only")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def.Name != "deployed_only" {
		t.Errorf("name: got %q", def.Name)
	}
}

func TestChainLoader_AllMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	chain := ChainLoader{FileLoader{Dir: t.TempDir()}, newClient(srv)}
	_, err := chain.Load(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestChainLoader_CorruptFileStopsChain(t *testing.T) {
	dir := t.TempDir()
	writeDef(t, dir, "broken.json", `{not json`)

	chain := ChainLoader{FileLoader{Dir: dir}, apiNeverCalled(t)}
	_, err := chain.Load(context.Background(), "broken")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want decode failure", err)
	}
}

// apiNeverCalled is a client whose server fails the test on any request.
func apiNeverCalled(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API consulted despite earlier loader failure")
	}))
	t.Cleanup(srv.Close)
	return New(config.ControlPlaneConfig{
		Endpoint:  srv.URL,
		Workspace: "ws",
		Timeout:   2 * time.Second,
	})
}

var _ interface {
	Load(ctx context.Context, name string) (*pipeline.Definition, error)
} = ChainLoader{}
