package handler

import (
	"context"

	"resume-intake-go/internal/logger"
	"resume-intake-go/internal/pipeline"
	"resume-intake-go/internal/types"

	"github.com/rs/zerolog"
)

// BatchHandler 批量上传相关操作的处理器
type BatchHandler struct {
	coordinator *pipeline.BulkUploadCoordinator
	logger      zerolog.Logger
}

// NewBatchHandler 创建批量上传处理器
func NewBatchHandler(coordinator *pipeline.BulkUploadCoordinator) *BatchHandler {
	return &BatchHandler{
		coordinator: coordinator,
		logger:      logger.Component("batch_handler"),
	}
}

// BatchCreateResponse 批次创建响应
type BatchCreateResponse struct {
	BatchID string `json:"batch_id"`
	Status  string `json:"status"`
}

// HandleStartBatch 创建批次，文件列表和远程文件夹链接二选一
func (h *BatchHandler) HandleStartBatch(ctx context.Context, docs []*types.Document, folderLink, sourceJobID, uploaderID string) (*BatchCreateResponse, error) {
	req := &pipeline.BatchRequest{
		Files:       docs,
		SourceJobID: sourceJobID,
		UploaderID:  uploaderID,
	}
	if folderLink != "" {
		req.Folder = &types.RemoteFolderRef{Link: folderLink}
	}

	batchID, err := h.coordinator.StartBatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return &BatchCreateResponse{BatchID: batchID, Status: "accepted"}, nil
}

// HandleBatchStatus 查询批次进度快照
func (h *BatchHandler) HandleBatchStatus(ctx context.Context, batchID string) (*types.BatchSnapshot, error) {
	return h.coordinator.GetStatus(ctx, batchID)
}

// HandleBatchResults 查询终态批次的完整结果明细
func (h *BatchHandler) HandleBatchResults(ctx context.Context, batchID string) (*types.BatchResults, error) {
	return h.coordinator.GetResults(ctx, batchID)
}

// HandleCancelBatch 请求取消批次
func (h *BatchHandler) HandleCancelBatch(ctx context.Context, batchID string) error {
	return h.coordinator.Cancel(ctx, batchID)
}
