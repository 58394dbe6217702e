package catalog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"trackhub/internal/logger"
)

func init() {
	logger.SetOutput(io.Discard)
}

func writeCatalog(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
}

func TestDefaultCatalog(t *testing.T) {
	s := NewService()
	if got := len(s.Levels()); got != 4 {
		t.Fatalf("default levels = %d, want 4", got)
	}
	if l, ok := s.Lookup(3); !ok || l.Name != "Level 3" {
		t.Errorf("Lookup(3) = %+v, %v", l, ok)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "levels.json")
	writeCatalog(t, path, `{"levels":[
		{"id":2,"name":"Pit Lane","available":true},
		{"id":1,"name":"Grandstand","available":true},
		{"id":3,"name":"Retired","available":false}
	]}`)

	s := NewService()
	builtIn := s.LoadedAt()
	if err := s.LoadFromFile(path); err != nil {
		t.Fatal(err)
	}
	if s.LoadedAt().Before(builtIn) {
		t.Errorf("LoadedAt went backwards: %v < %v", s.LoadedAt(), builtIn)
	}

	got := s.Levels()
	if len(got) != 2 || got[0].Name != "Grandstand" || got[1].Name != "Pit Lane" {
		t.Errorf("levels = %+v", got)
	}
	if _, ok := s.Lookup(3); ok {
		t.Error("unavailable level present")
	}
}

func TestLoadFromFileKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"malformed":  `{"levels":`,
		"empty":      `{"levels":[]}`,
		"duplicates": `{"levels":[{"id":1,"name":"A","available":true},{"id":1,"name":"B","available":true}]}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			writeCatalog(t, path, body)

			s := NewService()
			if err := s.LoadFromFile(path); err == nil {
				t.Fatal("expected error")
			}
			if len(s.Levels()) != 4 {
				t.Errorf("catalog replaced on error: %+v", s.Levels())
			}
		})
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "levels.json")
	writeCatalog(t, path, `{"levels":[{"id":1,"name":"Old","available":true}]}`)

	s := NewService()
	if err := s.LoadFromFile(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Watch(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	writeCatalog(t, path, `{"levels":[{"id":1,"name":"New","available":true}]}`)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if l, _ := s.Lookup(1); l.Name == "New" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("catalog not reloaded, still %+v", s.Levels())
}

func TestCloseWhileFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "levels.json")
	writeCatalog(t, path, `{"levels":[{"id":1,"name":"Novice","available":true}]}`)

	s := NewService()
	if err := s.LoadFromFile(path); err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			os.WriteFile(path, []byte(`{"levels":[{"id":1,"name":"Novice","available":true}]}`), 0644)
			os.WriteFile(filepath.Join(dir, fmt.Sprintf("other-%d.json", i%5)), []byte("{}"), 0644)
		}
	}()

	for i := 0; i < 30; i++ {
		if err := s.Watch(); err != nil {
			t.Fatalf("round %d: Watch: %v", i, err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("round %d: Close: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()

	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestWatchTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "levels.json")
	writeCatalog(t, path, `{"levels":[{"id":1,"name":"Novice","available":true}]}`)

	s := NewService()
	if err := s.LoadFromFile(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Watch(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Watch(); err == nil {
		t.Error("second Watch succeeded")
	}
}

func TestWatchWithoutFile(t *testing.T) {
	if err := NewService().Watch(); err == nil {
		t.Error("Watch without a loaded file succeeded")
	}
}
