package bufpool

import "testing"

func TestGetSizeBuckets(t *testing.T) {
	tests := []struct {
		name        string
		requestSize int
		expectCap   int
	}{
		{"32B bucket - exact", 32, 32},
		{"32B bucket - smaller", 17, 32},
		{"128B bucket - exact", 128, 128},
		{"128B bucket - smaller", 90, 128},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Get(tt.requestSize)
			if len(buf) != tt.requestSize {
				t.Errorf("Get(%d) returned len=%d, want %d", tt.requestSize, len(buf), tt.requestSize)
			}
			if cap(buf) != tt.expectCap {
				t.Errorf("Get(%d) returned cap=%d, want %d", tt.requestSize, cap(buf), tt.expectCap)
			}
			Put(buf)
		})
	}
}

func TestPutNonStandardCapDoesNotPanic(t *testing.T) {
	buf := make([]byte, 57)
	Put(buf)
}

func BenchmarkGet128(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := Get(128)
		Put(buf)
	}
}
