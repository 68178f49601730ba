package peers

import (
	"os"
	"path/filepath"
	"testing"
)

func writePeerFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peers.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadReturnsOthers(t *testing.T) {
	path := writePeerFile(t, "127.0.0.1:7001\n127.0.0.1:7002\n127.0.0.1:7003\n")

	got, err := Load(path, "127.0.0.1:7002")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d peers, want 2", len(got))
	}
	for _, p := range got {
		if p.HostPort == "127.0.0.1:7002" {
			t.Error("own address must be excluded from the peer set")
		}
		if p.Addr == nil || p.Addr.Port == 0 {
			t.Errorf("peer %s not resolved", p.HostPort)
		}
	}
}

func TestLoadToleratesCommentsAndBlanks(t *testing.T) {
	path := writePeerFile(t, "# the mesh\n\n127.0.0.1:7001\n  \n# idle\n127.0.0.1:7002\n")

	got, err := Load(path, "127.0.0.1:7001")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].HostPort != "127.0.0.1:7002" {
		t.Fatalf("got %+v, want just 127.0.0.1:7002", got)
	}
}

func TestLoadRejectsSelfAbsent(t *testing.T) {
	path := writePeerFile(t, "127.0.0.1:7001\n127.0.0.1:7002\n")

	if _, err := Load(path, "127.0.0.1:9999"); err == nil {
		t.Fatal("a node absent from its own directory must refuse to start")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.txt"), "x"); err == nil {
		t.Fatal("missing peer directory must be an error")
	}
}

func TestLoadRejectsUnresolvableEntry(t *testing.T) {
	path := writePeerFile(t, "127.0.0.1:7001\nnot-a-hostport\n")

	if _, err := Load(path, "127.0.0.1:7001"); err == nil {
		t.Fatal("unresolvable entry must be an error")
	}
}
