package utils

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BatchConfig 批量查询参数
type BatchConfig struct {
	BatchSize   int // 每批条数
	Concurrency int // 同时在途的请求数

	// OnProgress 每完成一项调用一次（串行调用）
	OnProgress func(progress BatchProgress)
}

// BatchProgress 批量查询进度快照
type BatchProgress struct {
	Completed  int
	Total      int
	Percentage int // 0-100
	Success    int
	Failed     int
}

// DefaultBatchConfig 每批 50 条、并发 5
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		BatchSize:   50,
		Concurrency: 5,
	}
}

// BatchItem 成功项及其输入下标
type BatchItem[R any] struct {
	Index int
	Value R
}

// BatchQueryResult 批量查询汇总
//
// Results 与 Items 一一对应，均按输入顺序排列；失败项只出现在 Errors 中。
type BatchQueryResult[R any] struct {
	Results []R
	Items   []BatchItem[R]
	Errors  []BatchError
	Total   int
	Success int
	Failed  int
}

// BatchError 失败项
type BatchError struct {
	Index int
	Error error
}

// BatchQuery 分批并发执行只读查询
//
// 单项失败记入 Errors，不中断其余查询；只有 ctx 取消会让整个调用返回错误。
// 用于批量读取重放账本的消费状态：
//
//	res, err := BatchQuery(ctx, hashes, func(ctx context.Context, h common.Hash, _ int) (uint64, error) {
//	    return ledger.GetConsumedAt(ctx, consumer, h)
//	}, DefaultBatchConfig())
func BatchQuery[T any, R any](
	ctx context.Context,
	items []T,
	queryFn func(ctx context.Context, item T, index int) (R, error),
	config *BatchConfig,
) (*BatchQueryResult[R], error) {
	size, limit := 50, 5
	var onProgress func(BatchProgress)
	if config != nil {
		if config.BatchSize > 0 {
			size = config.BatchSize
		}
		if config.Concurrency > 0 {
			limit = config.Concurrency
		}
		onProgress = config.OnProgress
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type outcome struct {
		value R
		err   error
		ran   bool
	}
	outcomes := make([]outcome, len(items))

	var (
		mu       sync.Mutex
		progress = BatchProgress{Total: len(items)}
	)
	record := func(idx int, v R, err error) {
		mu.Lock()
		defer mu.Unlock()
		outcomes[idx] = outcome{value: v, err: err, ran: true}
		progress.Completed++
		if err != nil {
			progress.Failed++
		} else {
			progress.Success++
		}
		progress.Percentage = progress.Completed * 100 / progress.Total
		if onProgress != nil {
			onProgress(progress)
		}
	}

	for n, chunk := range batchArray(items, size) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var g errgroup.Group
		g.SetLimit(limit)
		for i, item := range chunk {
			idx, item := n*size+i, item
			g.Go(func() error {
				v, err := queryFn(ctx, item, idx)
				record(idx, v, err)
				return nil
			})
		}
		_ = g.Wait()
	}

	result := &BatchQueryResult[R]{
		Results: make([]R, 0, len(items)),
		Items:   make([]BatchItem[R], 0, len(items)),
		Errors:  make([]BatchError, 0),
		Total:   len(items),
	}
	for i, o := range outcomes {
		switch {
		case !o.ran:
		case o.err != nil:
			result.Errors = append(result.Errors, BatchError{Index: i, Error: o.err})
		default:
			result.Results = append(result.Results, o.value)
			result.Items = append(result.Items, BatchItem[R]{Index: i, Value: o.value})
		}
	}
	result.Success = len(result.Results)
	result.Failed = len(result.Errors)
	return result, nil
}

// batchArray 按 batchSize 切分（batchSize <= 0 时返回 nil）
func batchArray[T any](array []T, batchSize int) [][]T {
	if batchSize <= 0 {
		return nil
	}
	var batches [][]T
	for len(array) > 0 {
		n := min(batchSize, len(array))
		batches = append(batches, array[:n])
		array = array[n:]
	}
	return batches
}

// ParallelExecute 以有限并发执行一组操作，首个失败会取消其余操作
//
// 结果与输入按下标对应。
func ParallelExecute[T any, R any](
	ctx context.Context,
	items []T,
	executeFn func(ctx context.Context, item T) (R, error),
	concurrency int,
) ([]R, error) {
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", concurrency)
	}

	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			r, err := executeFn(gctx, item)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
