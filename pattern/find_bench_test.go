package pattern

import (
	"bytes"
	"fmt"
	"testing"
)

// benchImage returns size bytes of filler with the needle placed at the end,
// the worst case for a forward scan.
func benchImage(size int, needle []byte) []byte {
	data := bytes.Repeat([]byte{0x90, 0xCC, 0x8B, 0x45}, size/4)
	copy(data[len(data)-len(needle):], needle)
	return data
}

// Benchmark_Find_Exact benchmarks a pattern with no wildcards.
func Benchmark_Find_Exact(b *testing.B) {
	for _, size := range []int{64 << 10, 1 << 20, 8 << 20} {
		b.Run(fmt.Sprintf("%dKB", size>>10), func(b *testing.B) {
			needle := []byte{0xD9, 0x05, 0x10, 0x20, 0x30, 0x40, 0xD8, 0x0D}
			data := benchImage(size, needle)
			p := Exact(needle)
			b.SetBytes(int64(size))
			b.ResetTimer()
			for range b.N {
				if _, ok := Find(data, p); !ok {
					b.Fatal("not found")
				}
			}
		})
	}
}

// Benchmark_Find_Wildcard benchmarks a pattern with a wildcard run in the
// middle.
func Benchmark_Find_Wildcard(b *testing.B) {
	for _, size := range []int{64 << 10, 1 << 20, 8 << 20} {
		b.Run(fmt.Sprintf("%dKB", size>>10), func(b *testing.B) {
			data := benchImage(size, []byte{0xD9, 0x05, 0x10, 0x20, 0x30, 0x40, 0xD8, 0x0D})
			p := MustParse("D9 05 ?? ?? ?? ?? D8 0D")
			b.SetBytes(int64(size))
			b.ResetTimer()
			for range b.N {
				if _, ok := Find(data, p); !ok {
					b.Fatal("not found")
				}
			}
		})
	}
}

// Benchmark_Find_LeadingWildcard benchmarks a pattern that starts with a
// wildcard, which cannot anchor on its first byte.
func Benchmark_Find_LeadingWildcard(b *testing.B) {
	data := benchImage(1<<20, []byte{0x11, 0x74, 0x05, 0xE8})
	p := MustParse("?? 74 05 E8")
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for range b.N {
		if _, ok := Find(data, p); !ok {
			b.Fatal("not found")
		}
	}
}

// Benchmark_Count benchmarks counting every match of a common sequence.
func Benchmark_Count(b *testing.B) {
	data := benchImage(1<<20, nil)
	p := MustParse("CC 8B")
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for range b.N {
		if Count(data, p) == 0 {
			b.Fatal("no matches")
		}
	}
}
