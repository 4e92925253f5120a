package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

type connection struct{ target string }

type clientFactory struct{ conn *connection }

func (f *clientFactory) Get(bin string) (string, error) {
	if bin == "" {
		return "", errors.New("empty bin")
	}
	return f.conn.target + "/" + bin, nil
}

type callerFactory struct{}

func (callerFactory) CallFactory(method string, args []any) (any, error) {
	return fmt.Sprintf("%s(%v)", method, args), nil
}

func testRegistry(t *testing.T, builds *int32) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := reg.RegisterFunction("database.GetConnection", func(args []any) (any, error) {
		atomic.AddInt32(builds, 1)
		return &connection{target: args[0].(string)}, nil
	}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := reg.RegisterClass("redis.Factory", func(args []any) (any, error) {
		return &clientFactory{conn: args[0].(*connection)}, nil
	}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	return reg
}

func testGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := NewBuilder().
		Primitive("database", "database.Connection", "database.GetConnection", Value("default")).
		Service("redis.factory", Definition{Class: "redis.Factory", Arguments: []Argument{Ref("database")}}).
		Service("redis.client", Definition{Factory: ServiceFactory("redis.factory", "get"), Arguments: []Argument{Value("container")}}).
		Build()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	return g
}

func TestContainerBuildsThroughFactoryMethod(t *testing.T) {
	var builds int32
	c, err := Compile(testRegistry(t, &builds), testGraph(t))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	v, err := c.Get(context.Background(), "redis.client")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if v != "default/container" {
		t.Fatalf("Expected default/container, got %v", v)
	}
}

func TestContainerMemoisesConcurrentBuilds(t *testing.T) {
	var builds int32
	c, err := Compile(testRegistry(t, &builds), testGraph(t))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var wg sync.WaitGroup
	results := make([]any, 20)
	for i := range results {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], _ = c.Get(context.Background(), "database")
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&builds); got != 1 {
		t.Fatalf("Expected 1 build, got %d", got)
	}
	for i, r := range results {
		if r != results[0] {
			t.Fatalf("Result %d: expected shared instance", i)
		}
	}
}

func TestCompileMergesLaterGraphsOver(t *testing.T) {
	var builds int32
	reg := testRegistry(t, &builds)
	override, err := NewBuilder().
		Primitive("database", "database.Connection", "database.GetConnection", Value("replica")).
		Build()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	c, err := Compile(reg, testGraph(t), override)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(c.Names()) != 3 {
		t.Fatalf("Expected 3 services after merge, got %v", c.Names())
	}
	v, _ := c.Get(context.Background(), "redis.client")
	if v != "replica/container" {
		t.Fatalf("Expected replica/container, got %v", v)
	}
}

func TestCompileRejectsUnresolvedAndUnknown(t *testing.T) {
	manifest, err := NewBuilder().
		Service("cache.backend", Definition{Class: "redis.Backend", Arguments: []Argument{Ref("redis.factory")}}).
		BuildPartial()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	_, err = Compile(NewRegistry(), manifest)
	if !errors.Is(err, ErrUnresolvedReference) {
		t.Fatalf("Expected ErrUnresolvedReference, got %v", err)
	}
	if !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("Expected unknown class to be reported too, got %v", err)
	}
}

func TestCompileResolvesProvidedPrimitives(t *testing.T) {
	reg := NewRegistry()
	reg.Provide("settings", map[string]string{"prefix": "site"})
	_ = reg.RegisterClass("redis.Settings", func(args []any) (any, error) {
		return args[0].(map[string]string)["prefix"], nil
	})
	g, err := NewBuilder().
		Extern("settings").
		Service("redis.settings", Definition{Class: "redis.Settings", Arguments: []Argument{Ref("settings")}}).
		Build()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	c, err := Compile(reg, g)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !c.Has("settings") {
		t.Fatal("Expected provided primitive to be visible")
	}
	v, err := c.Get(context.Background(), "redis.settings")
	if err != nil || v != "site" {
		t.Fatalf("Expected site, got %v (%v)", v, err)
	}
}

func TestContainerFactoryCaller(t *testing.T) {
	reg := NewRegistry()
	reg.Provide("factory", callerFactory{})
	g, _ := NewBuilder().
		Extern("factory").
		Service("svc", Definition{Factory: ServiceFactory("factory", "get"), Arguments: []Argument{Value("x")}}).
		Build()
	c, err := Compile(reg, g)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	v, err := c.Get(context.Background(), "svc")
	if err != nil || v != "get([x])" {
		t.Fatalf("Expected get([x]), got %v (%v)", v, err)
	}
}

func TestContainerReportsBuildErrors(t *testing.T) {
	var builds int32
	reg := testRegistry(t, &builds)
	g, _ := NewBuilder().
		Primitive("database", "database.Connection", "database.GetConnection", Value("default")).
		Service("redis.factory", Definition{Class: "redis.Factory", Arguments: []Argument{Ref("database")}}).
		Service("bad", Definition{Factory: ServiceFactory("redis.factory", "get"), Arguments: []Argument{Value("")}}).
		Build()
	c, err := Compile(reg, g)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, err := c.Get(context.Background(), "bad"); err == nil {
		t.Fatal("Expected factory error")
	}
	if _, err := c.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	ctor := func([]any) (any, error) { return nil, nil }
	if err := reg.RegisterClass("A", ctor); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := reg.RegisterClass("A", ctor); !errors.Is(err, ErrDuplicateService) {
		t.Fatalf("Expected ErrDuplicateService, got %v", err)
	}
	if err := reg.RegisterFunction("", ctor); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("Expected ErrInvalidDefinition, got %v", err)
	}
}
