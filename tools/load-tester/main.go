package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/V4T54L/pii-stream-filter/internal/adapter/codec"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/synth"
	"github.com/V4T54L/pii-stream-filter/internal/domain"
)

func main() {
	targetURL := flag.String("url", "http://localhost:8080/transform", "Target URL of the transform endpoint")
	apiKey := flag.String("api-key", "", "API Key for authentication")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 100, "Batches per second limit")
	batchSize := flag.Int("batch", 50, "Records per batch")
	flag.Parse()

	log.Printf("Starting load test on %s", *targetURL)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d, Batch size: %d", *concurrency, *duration, *rps, *batchSize)

	var wg sync.WaitGroup
	var successCount, errorCount, recordCount, redactedCount atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 10)

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{Timeout: 5 * time.Second}
			gen := synth.NewGenerator(synth.WithSeed(uint64(workerID), uint64(time.Now().UnixNano())))

			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				body, err := newBatch(gen, *batchSize)
				if err != nil {
					log.Fatalf("worker %d: build batch: %v", workerID, err)
				}

				req, err := http.NewRequestWithContext(ctx, http.MethodPost, *targetURL, bytes.NewReader(body))
				if err != nil {
					continue
				}
				req.Header.Set("Content-Type", "application/json")
				if *apiKey != "" {
					req.Header.Set("X-API-Key", *apiKey)
				}

				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						errorCount.Add(1)
					}
					continue
				}

				if resp.StatusCode == http.StatusOK {
					successCount.Add(1)
					records, redacted := countResponse(resp.Body)
					recordCount.Add(records)
					redactedCount.Add(redacted)
				} else {
					errorCount.Add(1)
				}
				resp.Body.Close()
			}
		}(i)
	}

	wg.Wait()

	totalRequests := successCount.Load() + errorCount.Load()

	log.Println("Load test finished.")
	log.Printf("Total Batches: %d", totalRequests)
	log.Printf("Successful (200 OK): %d", successCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Records: %d (redacted %d)", recordCount.Load(), redactedCount.Load())
	log.Printf("Actual batches/s: %.2f", float64(totalRequests)/duration.Seconds())
}

func newBatch(gen *synth.Generator, size int) ([]byte, error) {
	req := domain.TransformRequest{InvocationID: uuid.NewString(), Records: make([]domain.EncodedRecord, 0, size)}
	for i := 0; i < size; i++ {
		raw, err := json.Marshal(gen.Next())
		if err != nil {
			return nil, err
		}
		req.Records = append(req.Records, domain.EncodedRecord{
			RecordID: fmt.Sprintf("%s-%d", req.InvocationID, i),
			Data:     codec.EncodePayload(raw),
		})
	}
	return json.Marshal(req)
}

func countResponse(body io.Reader) (records, redacted int64) {
	var resp domain.TransformResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return 0, 0
	}
	for _, r := range resp.Records {
		rec, err := codec.DecodeRecord(r.Data)
		if err == nil && rec.DataRedacted != nil && *rec.DataRedacted {
			redacted++
		}
	}
	return int64(len(resp.Records)), redacted
}
