package rag

import (
	"errors"
	"fmt"
)

// ValidationError 输入校验错误(空文本、空向量等),立即返回调用方,不重试
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("参数校验失败: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("参数校验失败: %s", e.Message)
}

// NewValidationError 创建校验错误
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError 判断是否为校验错误
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConfigurationError 配置错误(缺少 API Key 等)
// 回答流水线会把该类错误转换为拒答响应而不是 5xx,检索功能保持可用
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("配置错误: %s", e.Message)
}

// NewConfigurationError 创建配置错误
func NewConfigurationError(message string) *ConfigurationError {
	return &ConfigurationError{Message: message}
}

// IsConfigurationError 判断是否为配置错误
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// errEmptyCompletion 模型返回空候选
var errEmptyCompletion = errors.New("模型返回空响应")

// ProviderError LLM/向量模型调用失败
// Unavailable 标记"模型不存在/不支持"一类错误,Gemini 客户端据此尝试候选模型列表
type ProviderError struct {
	Provider    string
	Model       string
	Unavailable bool
	Err         error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s 调用失败 (model=%s): %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsModelUnavailable 判断是否为"模型不可用"类错误,仅该类错误允许按候选列表重试
func IsModelUnavailable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Unavailable
}
