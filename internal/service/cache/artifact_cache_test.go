package cache

import (
	"sync"
	"testing"
	"time"

	"CryptoPulse/internal/domain/models"
)

func key(coin string) models.ArtifactKey {
	return models.ArtifactKey{Coin: coin, Class: models.ClassDaily, Family: models.FamilyEnsemble}
}

func TestArtifactCachePutGetClear(t *testing.T) {
	c := NewArtifactCache(0)
	a := &models.Artifact{Key: key("BTCUSDT")}
	c.Put(a)

	got, ok := c.Get(key("BTCUSDT"))
	if !ok || got != a {
		t.Fatalf("expected cached artifact")
	}
	if _, ok := c.Get(key("ETHUSDT")); ok {
		t.Fatalf("unexpected hit")
	}
	if n := c.Clear(); n != 1 {
		t.Fatalf("cleared %d, want 1", n)
	}
	if c.Len() != 0 {
		t.Fatalf("cache not empty after clear")
	}
}

func TestArtifactCacheReplaceIsAtomic(t *testing.T) {
	c := NewArtifactCache(0)
	old := &models.Artifact{Key: key("BTCUSDT")}
	fresh := &models.Artifact{Key: key("BTCUSDT")}
	c.Put(old)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				got, ok := c.Get(key("BTCUSDT"))
				if !ok || (got != old && got != fresh) {
					t.Errorf("reader saw a missing or foreign artifact")
					return
				}
			}
		}()
	}
	c.Put(fresh)
	wg.Wait()

	if got, _ := c.Get(key("BTCUSDT")); got != fresh {
		t.Fatalf("replacement not visible")
	}
}

func TestArtifactCacheExpiry(t *testing.T) {
	c := NewArtifactCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.Put(&models.Artifact{Key: key("BTCUSDT")})

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(key("BTCUSDT")); ok {
		t.Fatalf("expected expiry")
	}
}
