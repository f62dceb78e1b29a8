// Package bench measures the wire codec and the command loop.
//
// Benchmarks: go test -bench=. -benchmem ./bench/
package bench

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/caffeineduck/goru/client"
	"github.com/caffeineduck/goru/executor"
	"github.com/caffeineduck/goru/wire"
	"github.com/caffeineduck/goru/worker"
)

// --- Codec ---

func benchArray(n int) *wire.NDArray {
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i) * 0.5
	}
	return wire.MustNDArray(data, n)
}

func BenchmarkEncodeNDArray_1M(b *testing.B) {
	arr := benchArray(1 << 20)
	b.SetBytes(int64(arr.Size() * arr.ItemSize()))
	b.ResetTimer()
	for b.Loop() {
		v, err := wire.Encode(arr)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := json.Marshal(v); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeNDArray_1M(b *testing.B) {
	arr := benchArray(1 << 20)
	v, _ := wire.Encode(arr)
	data, _ := json.Marshal(v)
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for b.Loop() {
		parsed, err := wire.ParseValue(data)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := wire.Decode(parsed); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncodeNested(b *testing.B) {
	doc := map[string]any{
		"name":  "run-42",
		"steps": []any{int64(1), int64(2), int64(3), 4.5, "five"},
		"meta":  map[string]any{"ok": true, "score": 0.75, "tags": []any{"a", "b"}},
	}
	for b.Loop() {
		v, err := wire.Encode(doc)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := json.Marshal(v); err != nil {
			b.Fatal(err)
		}
	}
}

// --- Command loop ---

// BenchmarkServe_Call measures one call round trip through the loop with
// the input fully buffered.
func BenchmarkServe_Call(b *testing.B) {
	line := `["call","add",{"class":"list","value":[{"class":"int","value":1},{"class":"int","value":2}]}]` + "\n"
	for b.Loop() {
		b.StopTimer()
		exec := executor.NewStarlark()
		in := io.NopCloser(strings.NewReader(`["exec","def add(a, b):\n    return a + b\n","None"]` + "\n" + strings.Repeat(line, 100)))
		out := discardCloser{}
		b.StartTimer()

		if err := worker.New(exec).Serve(context.Background(), in, out); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkClient_RoundTrip measures a synchronous request/response over
// in-process pipes, the cost a controller sees per command.
func BenchmarkClient_RoundTrip(b *testing.B) {
	cmdR, cmdW := io.Pipe()
	respR, respW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- worker.New(executor.NewStarlark()).Serve(context.Background(), cmdR, respW)
	}()
	c := client.New(respR, cmdW)

	ctx := context.Background()
	if _, err := c.Exec(ctx, "def inc(x):\n    return x + 1\n", "None"); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for b.Loop() {
		if _, err := c.Call(ctx, "inc", int64(1)); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()

	if err := c.Close(); err != nil {
		b.Fatal(err)
	}
	if err := <-done; err != nil {
		b.Fatal(err)
	}
}

// BenchmarkColdStart measures executor construction plus a first fragment.
func BenchmarkColdStart(b *testing.B) {
	for b.Loop() {
		exec := executor.NewStarlark()
		if err := exec.RunFragment(context.Background(), executor.NewScope(), "<bench>", "x = 1"); err != nil {
			b.Fatal(err)
		}
	}
}

type discardCloser struct{}

func (discardCloser) Write(p []byte) (int, error) { return len(p), nil }
func (discardCloser) Close() error                { return nil }

// TestServeFixture checks the fixture used by the loop benchmarks.
func TestServeFixture(t *testing.T) {
	r, w := io.Pipe()
	in := io.NopCloser(strings.NewReader(`["exec","x = 40","x + 2"]` + "\n"))
	go func() {
		worker.New(executor.NewStarlark()).Serve(context.Background(), in, w)
	}()
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(line) != `{"class":"int","value":42}` {
		t.Errorf("response = %q", line)
	}
}
