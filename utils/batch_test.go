package utils

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestBatchQuery(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		items  []int
		config *BatchConfig
	}{
		{name: "empty items", items: []int{}, config: DefaultBatchConfig()},
		{name: "nil config", items: []int{1, 2, 3}, config: nil},
		{name: "single item", items: []int{1}, config: DefaultBatchConfig()},
		{name: "multiple items", items: []int{1, 2, 3, 4, 5}, config: &BatchConfig{BatchSize: 2, Concurrency: 2}},
		{name: "batch size zero uses default", items: []int{1, 2, 3}, config: &BatchConfig{BatchSize: 0, Concurrency: 5}},
		{name: "concurrency zero uses default", items: []int{1, 2, 3}, config: &BatchConfig{BatchSize: 50, Concurrency: 0}},
		{name: "single concurrency", items: []int{1, 2, 3, 4, 5}, config: &BatchConfig{BatchSize: 2, Concurrency: 1}},
		{name: "large input", items: make([]int, 1000), config: &BatchConfig{BatchSize: 10, Concurrency: 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := BatchQuery(ctx, tt.items, func(ctx context.Context, item int, index int) (int, error) {
				return index * 2, nil
			}, tt.config)
			if err != nil {
				t.Fatalf("BatchQuery() error = %v", err)
			}
			if len(result.Results) != len(tt.items) {
				t.Errorf("BatchQuery() got %d results, want %d", len(result.Results), len(tt.items))
			}
			if result.Total != len(tt.items) || result.Success != len(tt.items) {
				t.Errorf("BatchQuery() Total = %d Success = %d, want %d", result.Total, result.Success, len(tt.items))
			}
			for i, v := range result.Results {
				if v != i*2 || result.Items[i].Index != i {
					t.Errorf("BatchQuery() results[%d] = %d (index %d), want input order", i, v, result.Items[i].Index)
				}
			}
		})
	}
}

func TestBatchQuery_DoesNotMutateConfig(t *testing.T) {
	cfg := &BatchConfig{}
	if _, err := BatchQuery(context.Background(), []int{1}, func(ctx context.Context, item int, index int) (int, error) {
		return item, nil
	}, cfg); err != nil {
		t.Fatalf("BatchQuery() error = %v", err)
	}
	if cfg.BatchSize != 0 || cfg.Concurrency != 0 {
		t.Errorf("BatchQuery() mutated caller config: %+v", cfg)
	}
}

func TestBatchQuery_WithErrors(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	result, err := BatchQuery(context.Background(), items, func(ctx context.Context, item int, index int) (int, error) {
		if item%2 == 0 {
			return 0, errors.New("even number error")
		}
		return item * 2, nil
	}, DefaultBatchConfig())
	if err != nil {
		t.Fatalf("BatchQuery() error = %v, want nil", err)
	}

	if result.Success != 3 || result.Failed != 2 {
		t.Errorf("BatchQuery() Success = %d Failed = %d, want 3/2", result.Success, result.Failed)
	}
	if len(result.Errors) != 2 || result.Errors[0].Index != 1 || result.Errors[1].Index != 3 {
		t.Errorf("BatchQuery() Errors = %+v, want indexes 1 and 3", result.Errors)
	}
}

func TestBatchQuery_Progress(t *testing.T) {
	var calls int32
	_, err := BatchQuery(context.Background(), []int{1, 2, 3, 4, 5}, func(ctx context.Context, item int, index int) (int, error) {
		return item, nil
	}, &BatchConfig{
		BatchSize:   2,
		Concurrency: 2,
		OnProgress: func(progress BatchProgress) {
			atomic.AddInt32(&calls, 1)
			if progress.Total != 5 {
				t.Errorf("OnProgress: Total = %d, want 5", progress.Total)
			}
		},
	})
	if err != nil {
		t.Fatalf("BatchQuery() error = %v", err)
	}
	if calls != 5 {
		t.Errorf("OnProgress called %d times, want 5", calls)
	}
}

func TestBatchQuery_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BatchQuery(ctx, []int{1, 2, 3}, func(ctx context.Context, item int, index int) (int, error) {
		return item * 2, nil
	}, DefaultBatchConfig())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("BatchQuery() error = %v, want context.Canceled", err)
	}
}

func TestParallelExecute(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		items       []int
		concurrency int
		wantErr     bool
	}{
		{name: "empty items", items: []int{}, concurrency: 5},
		{name: "multiple items", items: []int{1, 2, 3, 4, 5}, concurrency: 3},
		{name: "high concurrency", items: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, concurrency: 2},
		{name: "concurrency zero", items: []int{1, 2, 3}, concurrency: 0, wantErr: true},
		{name: "concurrency negative", items: []int{1, 2, 3}, concurrency: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := ParallelExecute(ctx, tt.items, func(ctx context.Context, item int) (int, error) {
				return item * 2, nil
			}, tt.concurrency)

			if (err != nil) != tt.wantErr {
				t.Fatalf("ParallelExecute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			for i, result := range results {
				if result != tt.items[i]*2 {
					t.Errorf("ParallelExecute() results[%d] = %d, want %d", i, result, tt.items[i]*2)
				}
			}
		})
	}
}

func TestParallelExecute_FirstFailureCancelsRest(t *testing.T) {
	errBoom := errors.New("owner lookup failed")
	var sawCancel atomic.Bool
	_, err := ParallelExecute(context.Background(), []int{0, 1}, func(ctx context.Context, item int) (int, error) {
		if item == 0 {
			return 0, errBoom
		}
		<-ctx.Done()
		sawCancel.Store(true)
		return 0, ctx.Err()
	}, 2)
	if !errors.Is(err, errBoom) {
		t.Fatalf("ParallelExecute() error = %v, want wrapped errBoom", err)
	}
	if !sawCancel.Load() {
		t.Error("ParallelExecute() did not cancel the remaining item")
	}
}

func TestBatchArray(t *testing.T) {
	tests := []struct {
		name        string
		array       []int
		batchSize   int
		wantBatches int
		wantLen     int
	}{
		{name: "empty array", array: []int{}, batchSize: 5, wantBatches: 0, wantLen: 0},
		{name: "single batch", array: []int{1, 2, 3}, batchSize: 5, wantBatches: 1, wantLen: 3},
		{name: "multiple batches", array: make([]int, 10), batchSize: 3, wantBatches: 4, wantLen: 10},
		{name: "exact batch size", array: make([]int, 5), batchSize: 5, wantBatches: 1, wantLen: 5},
		{name: "batch size zero", array: []int{1, 2, 3}, batchSize: 0, wantBatches: 0, wantLen: 0},
		{name: "batch size negative", array: []int{1, 2, 3}, batchSize: -1, wantBatches: 0, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := batchArray(tt.array, tt.batchSize)
			if len(batches) != tt.wantBatches {
				t.Errorf("batchArray() got %d batches, want %d", len(batches), tt.wantBatches)
			}
			total := 0
			for _, batch := range batches {
				total += len(batch)
			}
			if total != tt.wantLen {
				t.Errorf("batchArray() total length = %d, want %d", total, tt.wantLen)
			}
		})
	}
}

func TestDefaultBatchConfig(t *testing.T) {
	config := DefaultBatchConfig()
	if config.BatchSize != 50 {
		t.Errorf("DefaultBatchConfig() BatchSize = %d, want 50", config.BatchSize)
	}
	if config.Concurrency != 5 {
		t.Errorf("DefaultBatchConfig() Concurrency = %d, want 5", config.Concurrency)
	}
}
