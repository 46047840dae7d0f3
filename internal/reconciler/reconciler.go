// Package reconciler contains the event-driven handlers that keep the
// denormalized document collections consistent. Every handler is invoked
// once per committed mutation with the document's previous and new field
// values, reads whatever else it needs from the store, and writes derived
// state through the batch executor. Consistency rests on idempotency
// guards and the atomicity of single-document writes and bounded batches,
// not on locks.
package reconciler

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/noah-isme/center-ops-api/internal/models"
)

// runAll executes the given functions concurrently and waits for all of
// them, returning the first error observed. Cascades triggered by one input
// mutation run this way; there is no ordering guarantee between them.
func runAll(fns ...func() error) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, fn := range fns {
		wg.Add(1)
		go func(f func() error) {
			defer wg.Done()
			if err := f(); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(fn)
	}
	wg.Wait()
	return firstErr
}

// normalizeStatus maps legacy student status spellings onto canonical ones.
func normalizeStatus(aliases map[string]string, status string) string {
	if canonical, ok := aliases[status]; ok {
		return canonical
	}
	return status
}

// expectedEndDate projects when a student's remaining balance runs out:
// startDate plus one week per weekly cycle still needed.
func expectedEndDate(startDate string, remaining, weeklyCount int) string {
	if startDate == "" {
		return ""
	}
	start, err := time.Parse(models.DateLayout, startDate)
	if err != nil {
		return ""
	}
	if weeklyCount < 1 {
		weeklyCount = 1
	}
	weeks := int(math.Ceil(float64(remaining) / float64(weeklyCount)))
	return start.AddDate(0, 0, weeks*7).Format(models.DateLayout)
}

// decodeBoth unmarshals the previous and new images of an event; either may
// be absent.
func decodeBoth[T any](before, after json.RawMessage) (*T, *T, error) {
	var prev, next *T
	if len(before) > 0 {
		prev = new(T)
		if err := json.Unmarshal(before, prev); err != nil {
			return nil, nil, err
		}
	}
	if len(after) > 0 {
		next = new(T)
		if err := json.Unmarshal(after, next); err != nil {
			return nil, nil, err
		}
	}
	return prev, next, nil
}

func stringSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}
