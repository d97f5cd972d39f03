package registry

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"alpha-mirror/internal/domain"
)

func TestContains_CaseInsensitive(t *testing.T) {
	r := New()
	r.Put(&domain.AlphaWallet{Address: "0xAe2Fc483527B8EF99EB5D9B44875F005ba1FaE13"})

	cases := []string{
		"0xae2fc483527b8ef99eb5d9b44875f005ba1fae13",
		"0xAE2FC483527B8EF99EB5D9B44875F005BA1FAE13",
		"0xAe2Fc483527B8EF99EB5D9B44875F005ba1FaE13",
	}
	for _, addr := range cases {
		if !r.Contains(addr) {
			t.Errorf("Contains(%s) = false, want true", addr)
		}
	}
	if r.Contains("0x1111111111111111111111111111111111111111") {
		t.Error("Contains returned true for untracked address")
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	r := New()
	r.Put(&domain.AlphaWallet{Address: "0xabc0000000000000000000000000000000000001", Score: 1.0})

	w := r.Get("0xabc0000000000000000000000000000000000001")
	if w == nil {
		t.Fatal("Get returned nil")
	}
	w.Score = 99.0

	again := r.Get("0xabc0000000000000000000000000000000000001")
	if again.Score != 1.0 {
		t.Errorf("mutation of returned copy leaked into registry: score %v", again.Score)
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			addr := fmt.Sprintf("0x%040x", n)
			r.Put(&domain.AlphaWallet{Address: addr})
			for j := 0; j < 100; j++ {
				r.Contains(addr)
				r.Len()
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 32 {
		t.Errorf("Len = %d, want 32", r.Len())
	}
}

func TestLoadFile_MissingIsEmpty(t *testing.T) {
	r := New()
	n, err := r.LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if n != 0 || r.Len() != 0 {
		t.Errorf("expected empty registry, got %d wallets", r.Len())
	}
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	r := New()
	r.Put(&domain.AlphaWallet{Address: "0x1100000000000000000000000000000000000000", Score: 2.5, AvgMultiplier: 12.0, WinRate: 0.7})
	r.Put(&domain.AlphaWallet{Address: "0x2200000000000000000000000000000000000000", Score: 8.1, AvgMultiplier: 40.0, WinRate: 0.9})

	path := filepath.Join(t.TempDir(), "data", "wallets.json")
	if err := r.SaveFile(path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}

	fresh := New()
	n, err := fresh.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if n != 2 || fresh.Len() != 2 {
		t.Fatalf("loaded %d wallets, want 2", fresh.Len())
	}

	w := fresh.Get("0x2200000000000000000000000000000000000000")
	if w == nil || w.AvgMultiplier != 40.0 || w.WinRate != 0.9 {
		t.Errorf("roundtrip lost fields: %+v", w)
	}
}
