package pipeline

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrExtractionFailed = errors.New("提取简历文本失败")
	ErrAnalysisFailed   = errors.New("简历结构化分析失败")
	ErrRemoteFailed     = errors.New("远程调用失败")
	ErrResolutionFailed = errors.New("解析远程文件夹失败")
	ErrStoreFailed      = errors.New("持久化分析结果失败")
	ErrFileRejected     = errors.New("文件未通过准入校验")
)

// IngestError 包含详细错误信息的自定义错误
type IngestError struct {
	FileName string
	Op       string
	BaseErr  error
	Detail   string
}

func (e *IngestError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 文件:%s): %s", e.BaseErr, e.Op, e.FileName, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 文件:%s)", e.BaseErr, e.Op, e.FileName)
}

func (e *IngestError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *IngestError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewExtractionError(fileName, detail string) error {
	return &IngestError{
		FileName: fileName,
		Op:       "extract",
		BaseErr:  ErrExtractionFailed,
		Detail:   detail,
	}
}

func NewAnalysisError(fileName, detail string) error {
	return &IngestError{
		FileName: fileName,
		Op:       "analyze",
		BaseErr:  ErrAnalysisFailed,
		Detail:   detail,
	}
}

func NewRemoteError(fileName, detail string) error {
	return &IngestError{
		FileName: fileName,
		Op:       "download",
		BaseErr:  ErrRemoteFailed,
		Detail:   detail,
	}
}

func NewResolutionError(ref, detail string) error {
	return &IngestError{
		FileName: ref,
		Op:       "resolve",
		BaseErr:  ErrResolutionFailed,
		Detail:   detail,
	}
}

func NewAdmissionError(fileName, detail string) error {
	return &IngestError{
		FileName: fileName,
		Op:       "admit",
		BaseErr:  ErrFileRejected,
		Detail:   detail,
	}
}

func NewStoreError(fileName, detail string) error {
	return &IngestError{
		FileName: fileName,
		Op:       "persist",
		BaseErr:  ErrStoreFailed,
		Detail:   detail,
	}
}
