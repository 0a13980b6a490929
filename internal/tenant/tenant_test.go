package tenant

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
)

func TestResolvePriority(t *testing.T) {
	cases := []struct {
		name string
		src  Sources
		want string
		ok   bool
	}{
		{"route beats query", Sources{Route: "5", Query: "9"}, "5", true},
		{"route beats everything", Sources{Route: "5", Query: "9", Header: "7", Claim: "3"}, "5", true},
		{"query beats header", Sources{Query: "9", Header: "7", Claim: "3"}, "9", true},
		{"header beats claim", Sources{Header: "7", Claim: "3"}, "7", true},
		{"claim last", Sources{Claim: "3"}, "3", true},
		{"blank skipped", Sources{Route: "  ", Query: "", Header: "7"}, "7", true},
		{"trimmed", Sources{Header: " 7 "}, "7", true},
		{"unresolved", Sources{}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Resolver{}.Resolve(tc.src)
			if got != tc.want || ok != tc.ok {
				t.Fatalf("Resolve = %q, %v; want %q, %v", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestResolveInvalidCandidateFallsThrough(t *testing.T) {
	numeric := Resolver{Valid: func(s string) bool {
		_, err := strconv.Atoi(s)
		return err == nil
	}}
	got, ok := numeric.Resolve(Sources{Route: "abc", Query: "x", Header: "7", Claim: "3"})
	if !ok || got != "7" {
		t.Fatalf("Resolve = %q, %v", got, ok)
	}
	if _, ok := numeric.Resolve(Sources{Header: "nope"}); ok {
		t.Fatal("expected unresolved")
	}
}

func TestContextCachesResolution(t *testing.T) {
	calls := 0
	r := Resolver{Valid: func(string) bool {
		calls++
		return true
	}}
	ctx := r.Attach(context.Background(), Sources{Header: "7", Claim: "3"})
	for i := 0; i < 3; i++ {
		id, ok := FromContext(ctx)
		if !ok || id != "7" {
			t.Fatalf("FromContext = %q, %v", id, ok)
		}
	}
	if calls != 1 {
		t.Fatalf("resolver ran %d times, want 1", calls)
	}
}

func TestRequire(t *testing.T) {
	if _, err := Require(context.Background()); !errors.Is(err, ErrTenantRequired) {
		t.Fatalf("bare context err = %v", err)
	}
	if _, err := Require(WithSources(context.Background(), Sources{})); !errors.Is(err, ErrTenantRequired) {
		t.Fatalf("empty sources err = %v", err)
	}
	id, err := Require(WithTenant(context.Background(), "t-1"))
	if err != nil || id != "t-1" {
		t.Fatalf("Require = %q, %v", id, err)
	}
}

func TestConcurrentRequestsDoNotShareTenant(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := strconv.Itoa(i)
			ctx := WithSources(context.Background(), Sources{Header: want})
			if got, _ := FromContext(ctx); got != want {
				errs <- got
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for got := range errs {
		t.Fatalf("leaked tenant %q", got)
	}
}
