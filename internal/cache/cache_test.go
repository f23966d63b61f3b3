package cache

import (
	"testing"
	"time"
)

func TestKeyComposition(t *testing.T) {
	a := Key("90210", "openweathermap")
	b := Key("90210", "weatherapi")
	if a == b {
		t.Fatal("distinct sources for the same location must not collide")
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	c := New(15*time.Minute, 30*time.Minute)

	c.Set(Key("90210", "weatherapi"), "payload", ClassWeather)

	got, hit := c.Get(Key("90210", "weatherapi"))
	if !hit {
		t.Fatal("expected cache hit")
	}
	if got.(string) != "payload" {
		t.Fatalf("unexpected payload %v", got)
	}

	if _, hit := c.Get(Key("90210", "openweathermap")); hit {
		t.Fatal("unexpected hit for different source")
	}
}

// TestLazyExpiry verifies entries expire on read without a sweeper running.
func TestLazyExpiry(t *testing.T) {
	c := New(10*time.Millisecond, 20*time.Millisecond)

	c.Set("short", "a", ClassDefault)
	c.Set("long", "b", ClassWeather)

	time.Sleep(15 * time.Millisecond)

	if _, hit := c.Get("short"); hit {
		t.Error("default-class entry should have expired")
	}
	if _, hit := c.Get("long"); !hit {
		t.Error("weather-class entry should still be fresh")
	}

	time.Sleep(10 * time.Millisecond)
	if _, hit := c.Get("long"); hit {
		t.Error("weather-class entry should have expired")
	}
}

func TestInvalidate(t *testing.T) {
	c := New(time.Minute, time.Minute)

	c.Set("a", 1, ClassDefault)
	c.Set("b", 2, ClassDefault)

	c.Invalidate("a")
	if _, hit := c.Get("a"); hit {
		t.Error("invalidated entry still present")
	}
	if _, hit := c.Get("b"); !hit {
		t.Error("unrelated entry was dropped")
	}

	c.InvalidateAll()
	if _, hit := c.Get("b"); hit {
		t.Error("entry survived InvalidateAll")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after InvalidateAll, want 0", c.Len())
	}
}
