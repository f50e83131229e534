package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchProcessor 批处理器
// 将大量文本切成批次，在工作池中并行请求，结果保持输入顺序
type BatchProcessor struct {
	client     Client // 嵌入客户端
	batchSize  int    // 每批处理的文本数量
	maxWorkers int    // 最大并行工作线程数
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	return &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// Process 处理一组文本
// 空白文本对应位置返回 nil；全部为空白时返回 ErrNoEmbeddings
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// 记录非空文本在原始输入中的位置
	positions := make([]int, 0, len(texts))
	filtered := make([]string, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		positions = append(positions, i)
		filtered = append(filtered, text)
	}
	if len(filtered) == 0 {
		return nil, ErrNoEmbeddings
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches := splitIntoBatches(filtered, p.batchSize)
	batchResults := make([][][]float32, len(batches))

	wp := workerpool.New(p.maxWorkers)
	var processingErr error
	var errOnce sync.Once

	for i, batch := range batches {
		i, batch := i, batch
		wp.Submit(func() {
			if ctx.Err() != nil {
				errOnce.Do(func() { processingErr = ctx.Err() })
				return
			}

			vectors, err := p.client.EmbedBatch(ctx, batch)
			if err == nil && len(vectors) != len(batch) {
				err = fmt.Errorf("expected %d vectors, got %d", len(batch), len(vectors))
			}
			if err != nil {
				errOnce.Do(func() {
					processingErr = fmt.Errorf("batch %d processing error: %w", i, err)
				})
				cancel()
				return
			}
			batchResults[i] = vectors
		})
	}
	wp.StopWait()

	if processingErr != nil {
		return nil, processingErr
	}

	results := make([][]float32, len(texts))
	next := 0
	for _, vectors := range batchResults {
		for _, v := range vectors {
			results[positions[next]] = v
			next++
		}
	}
	return results, nil
}

// splitIntoBatches 将文本列表分割成多个批次
func splitIntoBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}
