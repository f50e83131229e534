package embedding

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 基于 testify/mock 的嵌入客户端，供其他包的测试使用
type MockClient struct {
	mock.Mock
}

// NewMockClient 创建模拟客户端，测试结束时自动校验期望
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Embed 实现 Client 接口
func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	var v []float32
	if args.Get(0) != nil {
		v = args.Get(0).([]float32)
	}
	return v, args.Error(1)
}

// EmbedBatch 实现 Client 接口
func (m *MockClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	var v [][]float32
	if args.Get(0) != nil {
		v = args.Get(0).([][]float32)
	}
	return v, args.Error(1)
}

// Name 实现 Client 接口
func (m *MockClient) Name() string {
	args := m.Called()
	return args.String(0)
}

// Dimension 实现 Client 接口
func (m *MockClient) Dimension() int {
	args := m.Called()
	return args.Int(0)
}
