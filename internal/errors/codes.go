package errors

import (
	"net/http"
	"sync"
)

// Code 是工具响应与内部错误共用的错误码，直接出现在工具信封的 code 字段中。
type Code string

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeUnknown               Code = "UNKNOWN_ERROR"
	CodeInvalidInput          Code = "INVALID_INPUT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeRateLimited           Code = "RATE_LIMITED"
	CodeChainFailure          Code = "CHAIN_FAILURE"
	CodeSwapFailure           Code = "SWAP_ERROR"
	CodeRetriesExhausted      Code = "RETRIES_EXHAUSTED"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
)

// Attributes 是错误码的默认行为。Status 为 0 时按 500 处理。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
	Status    int
}

var (
	codesMu sync.RWMutex
	codes   = map[Code]Attributes{
		CodeUnknown:               {"unknown error", SeverityCritical, false, true, http.StatusInternalServerError},
		CodeInvalidInput:          {"invalid input", SeverityInfo, false, false, http.StatusBadRequest},
		CodeNotFound:              {"resource not found", SeverityInfo, false, false, http.StatusNotFound},
		CodeConflict:              {"resource conflict", SeverityWarning, false, false, http.StatusConflict},
		CodeUnauthorized:          {"unauthorized", SeverityWarning, false, false, http.StatusUnauthorized},
		CodeRateLimited:           {"rate limit exceeded", SeverityInfo, true, false, http.StatusTooManyRequests},
		CodeChainFailure:          {"chain request failed", SeverityWarning, true, true, http.StatusBadGateway},
		CodeSwapFailure:           {"Swap failed", SeverityWarning, false, true, http.StatusBadGateway},
		CodeRetriesExhausted:      {"retries exhausted", SeverityWarning, false, true, http.StatusInternalServerError},
		CodeInitializationFailure: {"service not initialized", SeverityWarning, true, true, http.StatusServiceUnavailable},
		CodeStorageFailure:        {"storage failure", SeverityCritical, true, true, http.StatusInternalServerError},
		CodeQueueFailure:          {"queue failure", SeverityCritical, true, true, http.StatusInternalServerError},
		CodeTimeout:               {"operation timed out", SeverityWarning, true, true, http.StatusGatewayTimeout},
	}
)

// Register 在初始化阶段登记业务错误码，重复登记会覆盖。
func Register(code Code, attr Attributes) {
	codesMu.Lock()
	codes[code] = attr
	codesMu.Unlock()
}

// AttributesOf 返回错误码的属性，未登记的错误码按 UNKNOWN_ERROR 处理。
func AttributesOf(code Code) Attributes {
	codesMu.RLock()
	defer codesMu.RUnlock()
	attr, ok := codes[code]
	if !ok {
		attr = codes[CodeUnknown]
	}
	return attr
}

// StatusOf 返回错误码对应的 HTTP 状态码。
func StatusOf(code Code) int {
	if status := AttributesOf(code).Status; status != 0 {
		return status
	}
	return http.StatusInternalServerError
}
