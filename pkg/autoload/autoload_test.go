package autoload

import (
	"errors"
	"testing"
	"testing/fstest"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"modules/contrib/redis/src/driver/Factory.go": &fstest.MapFile{Data: []byte("package driver")},
		"modules/contrib/redis/src/Settings.go":       &fstest.MapFile{Data: []byte("package redis")},
		"modules/contrib/redis_extra/src/Extra.go":    &fstest.MapFile{Data: []byte("package extra")},
		"modules/contrib/redis/src/cache/Backend.go":  &fstest.MapFile{Data: []byte("package cache")},
	}
}

func TestNothingResolvesBeforeRegister(t *testing.T) {
	l, err := NewLoader(testFS())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, ok := l.Resolve("redis.Settings"); ok {
		t.Fatal("Expected no resolution without rules")
	}
}

func TestRegisterAndResolve(t *testing.T) {
	l, _ := NewLoader(testFS())
	if err := l.Register(Rule{Prefix: "redis.", Dir: "modules/contrib/redis/src"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	tests := []struct {
		id   string
		want string
		ok   bool
	}{
		{"redis.Settings", "modules/contrib/redis/src/Settings.go", true},
		{"redis.driver.Factory", "modules/contrib/redis/src/driver/Factory.go", true},
		{"redis.Missing", "", false},
		{"memcache.Settings", "", false},
		{"redis.", "", false},
	}
	for _, tt := range tests {
		got, ok := l.Resolve(tt.id)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("Resolve(%q): expected (%q, %v), got (%q, %v)", tt.id, tt.want, tt.ok, got, ok)
		}
	}
}

func TestResolveMissIsRetriedAfterRegister(t *testing.T) {
	l, _ := NewLoader(testFS())
	if _, ok := l.Resolve("redis.Settings"); ok {
		t.Fatal("Expected miss")
	}
	if err := l.Register(Rule{Prefix: "redis.", Dir: "modules/contrib/redis/src"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, ok := l.Resolve("redis.Settings"); !ok {
		t.Fatal("Expected cached miss to be dropped on register")
	}
}

func TestLongestPrefixWins(t *testing.T) {
	l, _ := NewLoader(testFS())
	_ = l.Register(Rule{Prefix: "redis.", Dir: "modules/contrib/redis/src"})
	_ = l.Register(Rule{Prefix: "redis.extra.", Dir: "modules/contrib/redis_extra/src"})

	got, ok := l.Resolve("redis.extra.Extra")
	if !ok || got != "modules/contrib/redis_extra/src/Extra.go" {
		t.Fatalf("Expected extra module path, got %q", got)
	}
	if rules := l.Rules(); rules[0].Prefix != "redis.extra." {
		t.Fatalf("Expected longest prefix first, got %v", rules)
	}
}

func TestRegisterErrors(t *testing.T) {
	l, _ := NewLoader(testFS())
	bad := []Rule{
		{Prefix: "", Dir: "src"},
		{Prefix: "redis", Dir: "src"},
		{Prefix: "redis.", Dir: ""},
		{Prefix: "redis.", Dir: "/abs/src"},
		{Prefix: "redis.", Dir: "../src"},
	}
	for _, r := range bad {
		if err := l.Register(r); !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("Register(%+v): expected ErrInvalidRule, got %v", r, err)
		}
	}

	if err := l.Register(Rule{Prefix: "redis.", Dir: "modules/contrib/redis/src"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := l.Register(Rule{Prefix: "redis.", Dir: "modules/contrib/redis/src"}); err != nil {
		t.Fatalf("Expected identical rule to be accepted again, got %v", err)
	}
	if err := l.Register(Rule{Prefix: "redis.", Dir: "other/src"}); !errors.Is(err, ErrDuplicatePrefix) {
		t.Fatalf("Expected ErrDuplicatePrefix, got %v", err)
	}
}

func TestWithSuffix(t *testing.T) {
	fsys := fstest.MapFS{"mod/src/Backend.yml": &fstest.MapFile{}}
	l, _ := NewLoader(fsys, WithSuffix(".yml"))
	_ = l.Register(Rule{Prefix: "redis.", Dir: "mod/src"})
	if got, ok := l.Resolve("redis.Backend"); !ok || got != "mod/src/Backend.yml" {
		t.Fatalf("Expected mod/src/Backend.yml, got %q", got)
	}
}

func TestInvalidCacheSize(t *testing.T) {
	if _, err := NewLoaderWithCacheSize(testFS(), 0); err == nil {
		t.Fatal("Expected error for zero cache size")
	}
}
