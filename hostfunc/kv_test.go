package hostfunc

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
)

func TestKVSetGet(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	if _, err := kv.Set(ctx, []any{"foo", "bar"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := kv.Get(ctx, []any{"foo"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "bar" {
		t.Errorf("expected bar, got %v", val)
	}
}

func TestKVStoresNativeValues(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	want := []any{int64(1), 2.5}
	kv.Set(ctx, []any{"list", want})

	got, _ := kv.Get(ctx, []any{"list"})
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestKVGetDefault(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	val, err := kv.Get(ctx, []any{"missing", "fallback"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "fallback" {
		t.Errorf("expected fallback, got %v", val)
	}
}

func TestKVGetMissing(t *testing.T) {
	kv := NewKV(DefaultKVConfig())

	val, err := kv.Get(context.Background(), []any{"missing"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil, got %v", val)
	}
}

func TestKVDelete(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	kv.Set(ctx, []any{"foo", "bar"})
	existed, _ := kv.Delete(ctx, []any{"foo"})
	if existed != true {
		t.Errorf("Delete should report the key existed")
	}

	val, _ := kv.Get(ctx, []any{"foo"})
	if val != nil {
		t.Errorf("expected nil after delete, got %v", val)
	}
}

func TestKVKeysSorted(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	for _, k := range []string{"c", "a", "b"} {
		kv.Set(ctx, []any{k, int64(1)})
	}

	keys, err := kv.Keys(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(keys, []any{"a", "b", "c"}) {
		t.Errorf("expected [a b c], got %v", keys)
	}
}

func TestKVLimits(t *testing.T) {
	kv := NewKV(KVConfig{MaxKeySize: 4, MaxEntries: 2})
	ctx := context.Background()

	if _, err := kv.Set(ctx, []any{"toolong", "x"}); err == nil || !strings.Contains(err.Error(), "max size") {
		t.Errorf("expected key size error, got %v", err)
	}

	kv.Set(ctx, []any{"a", "1"})
	kv.Set(ctx, []any{"b", "2"})
	if _, err := kv.Set(ctx, []any{"c", "3"}); err == nil || err.Error() != "kv store full" {
		t.Errorf("expected 'kv store full', got %v", err)
	}

	// Overwriting an existing key is allowed at capacity.
	if _, err := kv.Set(ctx, []any{"a", "updated"}); err != nil {
		t.Errorf("overwrite failed: %v", err)
	}
}

func TestKVArgumentErrors(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	if _, err := kv.Get(ctx, nil); err == nil {
		t.Error("expected error for missing key")
	}
	if _, err := kv.Get(ctx, []any{int64(1)}); err == nil {
		t.Error("expected error for non-string key")
	}
	if _, err := kv.Set(ctx, []any{"only-key"}); err == nil {
		t.Error("expected error for missing value")
	}
}

func TestKVConcurrent(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%26))
			kv.Set(ctx, []any{key, int64(i)})
			kv.Get(ctx, []any{key})
		}(i)
	}
	wg.Wait()

	keys, _ := kv.Keys(ctx, nil)
	if len(keys.([]any)) != 26 {
		t.Errorf("expected 26 keys, got %d", len(keys.([]any)))
	}
}

func TestKVRegister(t *testing.T) {
	r := NewRegistry()
	NewKV(DefaultKVConfig()).Register(r)

	want := []string{"kv_delete", "kv_get", "kv_keys", "kv_set"}
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("registered %v, want %v", got, want)
	}
}
