package taskqueue

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockQueue 用于测试的任务队列
type MockQueue struct {
	mock.Mock
}

// NewMockQueue 创建任务队列mock，测试结束时校验调用
func NewMockQueue(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockQueue {
	m := &MockQueue{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Enqueue 模拟入队
func (m *MockQueue) Enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (string, error) {
	args := m.Called(ctx, taskType, documentID, payload)
	return args.String(0), args.Error(1)
}

// EnqueueIn 模拟延迟入队
func (m *MockQueue) EnqueueIn(ctx context.Context, taskType TaskType, documentID string, payload interface{}, delay time.Duration) (string, error) {
	args := m.Called(ctx, taskType, documentID, payload, delay)
	return args.String(0), args.Error(1)
}

// GetTask 模拟获取任务
func (m *MockQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	args := m.Called(ctx, taskID)
	task, _ := args.Get(0).(*Task)
	return task, args.Error(1)
}

// GetTasksByDocument 模拟获取文档任务
func (m *MockQueue) GetTasksByDocument(ctx context.Context, documentID string) ([]*Task, error) {
	args := m.Called(ctx, documentID)
	tasks, _ := args.Get(0).([]*Task)
	return tasks, args.Error(1)
}

// WaitForTask 模拟等待任务
func (m *MockQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error) {
	args := m.Called(ctx, taskID, timeout)
	task, _ := args.Get(0).(*Task)
	return task, args.Error(1)
}

// DeleteTask 模拟删除任务
func (m *MockQueue) DeleteTask(ctx context.Context, taskID string) error {
	return m.Called(ctx, taskID).Error(0)
}

// UpdateTaskStatus 模拟更新状态
func (m *MockQueue) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errorMsg string) error {
	return m.Called(ctx, taskID, status, result, errorMsg).Error(0)
}

// Close 模拟关闭
func (m *MockQueue) Close() error {
	return m.Called().Error(0)
}
