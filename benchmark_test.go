package chunkup

import (
	"encoding/json"
	"testing"
)

func BenchmarkBufferPool(b *testing.B) {
	chunkSize := int64(5 * 1024 * 1024) // smallest catalog chunk
	pool := NewBufferPool(chunkSize, 4)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf := pool.Get()
			// Simulate some work
			for i := 0; i < len(buf); i += 4096 {
				buf[i] = byte(i)
			}
			pool.Put(buf)
		}
	})
}

func BenchmarkDirectAllocation(b *testing.B) {
	chunkSize := int64(5 * 1024 * 1024)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf := make([]byte, chunkSize)
			// Simulate some work
			for i := 0; i < len(buf); i += 4096 {
				buf[i] = byte(i)
			}
			// buf goes out of scope and gets GC'd
		}
	})
}

func BenchmarkCalculateChunks(b *testing.B) {
	fileSize := int64(100 * 1024 * 1024) // 100MB
	chunkSize := int64(10 * 1024 * 1024) // 10MB

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = calculateChunks(fileSize, chunkSize)
	}
}

func BenchmarkPlan(b *testing.B) {
	planner := NewChunkPlanner(DefaultTuning())
	cond := NetworkCondition{DownloadMbps: 95, UploadMbps: 40, LatencyMs: 35, Classification: NetworkStrong}
	fileSize := int64(750 * 1024 * 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = planner.Plan(fileSize, cond)
	}
}

func BenchmarkClassify(b *testing.B) {
	tuning := DefaultTuning()
	cond := NetworkCondition{DownloadMbps: 95, UploadMbps: 40, LatencyMs: 35}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = classify(cond, tuning)
	}
}

func BenchmarkIsVideoFile(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = isVideoFile("holiday.mp4", "")
	}
}

func BenchmarkChunkResponseDecode(b *testing.B) {
	payload := []byte(`{"status":"success","message":"stored","chunk_id":"c-41","chunks_received":42,"total_chunks":97,"bytes_written":10485760}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var resp ChunkResponse
		_ = json.Unmarshal(payload, &resp)
	}
}
