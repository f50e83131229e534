package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 基于 testify/mock 的大模型客户端，供测试使用
// 可变参数 options 作为一个整体参数传入 Called
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

// Generate 实现 Client 接口
func (m *MockClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	args := m.Called(ctx, prompt, options)
	var resp *Response
	if args.Get(0) != nil {
		resp = args.Get(0).(*Response)
	}
	return resp, args.Error(1)
}

// Chat 实现 Client 接口
func (m *MockClient) Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	args := m.Called(ctx, messages, options)
	var resp *Response
	if args.Get(0) != nil {
		resp = args.Get(0).(*Response)
	}
	return resp, args.Error(1)
}

// Name 实现 Client 接口
func (m *MockClient) Name() string {
	args := m.Called()
	return args.String(0)
}
