package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// NoContextSignal 检索不到任何上下文时传给生成器的显式标记，
// 避免模型在零上下文下凭空编造答案。
const NoContextSignal = "[NO CONTEXT FOUND]"

const systemPrompt = `You are a helpful AI assistant. Use ONLY the context below to answer the question.
If the answer is not in the context, respond with "I could not find the answer in the provided documents."

Format your response clearly in Markdown. Add bullet points if applicable.`

// Generator 答案生成能力（外部协作方）
type Generator interface {
	// Generate 根据问题与上下文生成答案；context为空字符串时必须传入NoContextSignal
	Generate(ctx context.Context, question, contextBlock string) (string, error)
	Ready() bool
}

// OpenAIGeneratorOptions OpenAI生成器配置
type OpenAIGeneratorOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// OpenAIGenerator 使用OpenAI Chat Completion API生成答案
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// NewOpenAIGenerator 创建OpenAI答案生成器
func NewOpenAIGenerator(opts OpenAIGeneratorOptions) (*OpenAIGenerator, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key not configured")
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		clientConfig.BaseURL = opts.BaseURL
	}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: float32(opts.Temperature),
		timeout:     opts.Timeout,
	}, nil
}

// BuildUserPrompt 组装用户消息
func BuildUserPrompt(question, contextBlock string) string {
	if strings.TrimSpace(contextBlock) == "" {
		contextBlock = NoContextSignal
	}
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", contextBlock, question)
}

func (g *OpenAIGenerator) Generate(ctx context.Context, question, contextBlock string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildUserPrompt(question, contextBlock)},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion response empty")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (g *OpenAIGenerator) Ready() bool {
	return g.client != nil
}
