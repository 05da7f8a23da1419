package router

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"resume-intake-go/internal/api/handler"
	"resume-intake-go/internal/config"
	"resume-intake-go/internal/pipeline"
	"resume-intake-go/internal/tracing"
	"resume-intake-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/hertz-contrib/keyauth"
	"go.opentelemetry.io/otel/trace"
)

// 调用方令牌在请求上下文中的键，仅用于持久化归属
const callerTokenKey = "caller_token"

// 请求ID的响应头与日志字段
const requestIDHeader = "X-Request-ID"

// requestID 为每个请求分配或透传请求ID，便于跨服务排查
func requestID() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		id := string(ctx.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Header(requestIDHeader, id)
		ctx.Set("request_id", id)
		ctx.Next(c)
	}
}

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, cfg *config.Config, resumeHandler *handler.ResumeHandler, batchHandler *handler.BatchHandler) {
	// 健康检查不经过鉴权
	h.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	h.Use(requestID())

	api := h.Group("/api/v1")
	if len(cfg.Server.APIKeys) > 0 {
		api.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
			keyauth.WithContextKey(callerTokenKey),
			keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
				for _, known := range cfg.Server.APIKeys {
					if known == key {
						return true, nil
					}
				}
				return false, nil
			}),
		))
	}

	// 单份简历同步摄入
	api.POST("/resumes/upload", func(c context.Context, ctx *app.RequestContext) {
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
			return
		}
		sourceJobID := ctx.PostForm("source_job_id")

		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
			return
		}
		defer file.Close()

		resp, err := resumeHandler.HandleResumeUpload(
			c,
			file,
			fileHeader.Size,
			fileHeader.Filename,
			fileHeader.Header.Get("Content-Type"),
			sourceJobID,
			callerToken(ctx),
		)
		if err != nil {
			writeError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 单份结果查询
	api.GET("/resumes/:submission_uuid", func(c context.Context, ctx *app.RequestContext) {
		resp, err := resumeHandler.HandleGetResult(c, ctx.Param("submission_uuid"))
		if err != nil {
			ctx.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 批量上传：multipart文件列表或表单中的远程文件夹链接
	api.POST("/resumes/batches", func(c context.Context, ctx *app.RequestContext) {
		folderLink := ctx.PostForm("folder_link")
		sourceJobID := ctx.PostForm("source_job_id")

		var docs []*types.Document
		if form, err := ctx.MultipartForm(); err == nil {
			fileHeaders := form.File["files"]
			docs = make([]*types.Document, 0, len(fileHeaders))
			for _, fh := range fileHeaders {
				doc, err := documentFromHeader(fh)
				if err != nil {
					ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
					return
				}
				docs = append(docs, doc)
			}
		}

		resp, err := batchHandler.HandleStartBatch(c, docs, folderLink, sourceJobID, callerToken(ctx))
		if err != nil {
			writeError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusAccepted, resp)
	})

	// 批次进度轮询
	api.GET("/resumes/batches/:batch_id/status", func(c context.Context, ctx *app.RequestContext) {
		snap, err := batchHandler.HandleBatchStatus(c, ctx.Param("batch_id"))
		if err != nil {
			ctx.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, snap)
	})

	// 终态批次结果
	api.GET("/resumes/batches/:batch_id/results", func(c context.Context, ctx *app.RequestContext) {
		results, err := batchHandler.HandleBatchResults(c, ctx.Param("batch_id"))
		if err != nil {
			writeError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, results)
	})

	// 取消批次
	api.DELETE("/resumes/batches/:batch_id", func(c context.Context, ctx *app.RequestContext) {
		if err := batchHandler.HandleCancelBatch(c, ctx.Param("batch_id")); err != nil {
			writeError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"status": "cancelling"})
	})
}

// documentFromHeader 读取multipart分片为待摄取文档
func documentFromHeader(fh *multipart.FileHeader) (*types.Document, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	mediaType := fh.Header.Get("Content-Type")
	switch mediaType {
	case string(types.MediaTypePDF), string(types.MediaTypeDOCX):
	default:
		switch strings.ToLower(filepath.Ext(fh.Filename)) {
		case ".pdf":
			mediaType = string(types.MediaTypePDF)
		case ".docx":
			mediaType = string(types.MediaTypeDOCX)
		}
	}

	return &types.Document{
		FileName:  fh.Filename,
		MediaType: types.MediaType(mediaType),
		Content:   content,
	}, nil
}

// callerToken 取出鉴权中间件写入的调用方令牌
func callerToken(ctx *app.RequestContext) string {
	if v, ok := ctx.Get(callerTokenKey); ok {
		if token, ok := v.(string); ok {
			return token
		}
	}
	return ""
}

// writeError 写出错误响应并把HTTP错误记到请求span上
func writeError(c context.Context, ctx *app.RequestContext, err error) {
	status := statusForError(err)
	tracing.RecordHTTPError(trace.SpanFromContext(c), err, status)
	ctx.JSON(status, utils.H{"error": err.Error()})
}

// statusForError 把管线错误映射为HTTP状态码
func statusForError(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrFileRejected):
		return consts.StatusBadRequest
	case errors.Is(err, pipeline.ErrExtractionFailed),
		errors.Is(err, pipeline.ErrAnalysisFailed):
		return consts.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrRemoteFailed),
		errors.Is(err, pipeline.ErrResolutionFailed):
		return consts.StatusBadGateway
	case errors.Is(err, pipeline.ErrStoreFailed):
		return consts.StatusInternalServerError
	}
	msg := err.Error()
	if strings.Contains(msg, "不存在") {
		return consts.StatusNotFound
	}
	if strings.Contains(msg, "尚未结束") {
		return consts.StatusConflict
	}
	return consts.StatusBadRequest
}
