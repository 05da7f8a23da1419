package ingestion

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"resume-intake-go/internal/config"
	"resume-intake-go/internal/constants"
	"resume-intake-go/internal/logger"
	"resume-intake-go/internal/pipeline"
	"resume-intake-go/internal/types"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// 支持的共享链接形态：
//
//	https://drive.google.com/drive/folders/<id>
//	https://drive.google.com/drive/u/0/folders/<id>
//	https://drive.google.com/open?id=<id>
var (
	folderPathRe  = regexp.MustCompile(`/folders/([A-Za-z0-9_-]+)`)
	folderQueryRe = regexp.MustCompile(`[?&]id=([A-Za-z0-9_-]+)`)
	bareFolderRe  = regexp.MustCompile(`^[A-Za-z0-9_-]{10,}$`)
)

// DriveResolver 将Google Drive共享文件夹链接展开为可摄取的文档列表
// 列目录和下载中的任何失败都是批次级解析失败
type DriveResolver struct {
	service     *drive.Service
	listTimeout time.Duration
	maxFiles    int
	logger      zerolog.Logger
}

// DriveResolverOption DriveResolver的配置选项
type DriveResolverOption func(*DriveResolver)

// WithListTimeout 设置单次解析的整体超时
func WithListTimeout(d time.Duration) DriveResolverOption {
	return func(r *DriveResolver) {
		if d > 0 {
			r.listTimeout = d
		}
	}
}

// WithMaxFiles 设置单个文件夹允许展开的文件数上限
func WithMaxFiles(n int) DriveResolverOption {
	return func(r *DriveResolver) {
		if n > 0 {
			r.maxFiles = n
		}
	}
}

// WithResolverLogger 设置日志记录器
func WithResolverLogger(l zerolog.Logger) DriveResolverOption {
	return func(r *DriveResolver) {
		r.logger = l
	}
}

// NewDriveResolver 创建Drive解析器
// 优先使用服务账号凭据，缺省回退API密钥（仅限公开共享的文件夹）
func NewDriveResolver(ctx context.Context, cfg *config.GoogleDriveConfig, options ...DriveResolverOption) (*DriveResolver, error) {
	var clientOpts []option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("读取Drive凭据文件失败: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, drive.DriveReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("解析Drive凭据失败: %w", err)
		}
		clientOpts = append(clientOpts, option.WithTokenSource(creds.TokenSource))
	case cfg.APIKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	default:
		return nil, fmt.Errorf("Drive解析器需要配置凭据文件或API密钥")
	}

	service, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("创建Drive客户端失败: %w", err)
	}

	r := &DriveResolver{
		service:     service,
		listTimeout: config.GetDuration(cfg.ListTimeout, 30*time.Second),
		maxFiles:    constants.MaxBatchFiles,
		logger:      logger.Component("drive_resolver"),
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

var _ pipeline.FolderResolver = (*DriveResolver)(nil)

// Resolve 展开共享文件夹链接，只收集未删除的PDF和DOCX文件并下载内容
func (r *DriveResolver) Resolve(ctx context.Context, ref *types.RemoteFolderRef) ([]*types.Document, error) {
	if ref == nil || ref.Link == "" {
		return nil, pipeline.NewResolutionError("", "远程文件夹链接为空")
	}

	folderID, err := ParseFolderLink(ref.Link)
	if err != nil {
		return nil, pipeline.NewResolutionError(ref.Link, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, r.listTimeout)
	defer cancel()

	query := fmt.Sprintf(
		"'%s' in parents and trashed = false and (mimeType = '%s' or mimeType = '%s')",
		folderID, types.MediaTypePDF, types.MediaTypeDOCX,
	)

	var entries []*drive.File
	pageToken := ""
	for {
		call := r.service.Files.List().
			Context(ctx).
			Q(query).
			Fields("nextPageToken, files(id, name, mimeType, size)").
			PageSize(100)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, pipeline.NewResolutionError(ref.Link, fmt.Sprintf("列出文件夹内容失败: %v", err))
		}
		entries = append(entries, page.Files...)
		if len(entries) > r.maxFiles {
			return nil, pipeline.NewResolutionError(ref.Link, fmt.Sprintf("文件夹包含超过 %d 个可摄取文件", r.maxFiles))
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	if len(entries) == 0 {
		return nil, pipeline.NewResolutionError(ref.Link, "文件夹中没有可摄取的PDF或DOCX文件")
	}

	docs := make([]*types.Document, 0, len(entries))
	for _, entry := range entries {
		content, err := r.download(ctx, entry)
		if err != nil {
			return nil, pipeline.NewResolutionError(ref.Link, fmt.Sprintf("下载文件 %s 失败: %v", entry.Name, err))
		}
		docs = append(docs, &types.Document{
			FileName:  entry.Name,
			MediaType: types.MediaType(entry.MimeType),
			Content:   content,
		})
	}

	r.logger.Info().
		Str("folder_id", folderID).
		Int("file_count", len(docs)).
		Msg("远程文件夹解析完成")
	return docs, nil
}

func (r *DriveResolver) download(ctx context.Context, entry *drive.File) ([]byte, error) {
	resp, err := r.service.Files.Get(entry.Id).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 超限文件在此截获，避免把超大内容读进内存
	limited := io.LimitReader(resp.Body, constants.MaxFileSizeBytes+1)
	content, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(content) > constants.MaxFileSizeBytes {
		return nil, fmt.Errorf("文件大小超出 %d 字节上限", constants.MaxFileSizeBytes)
	}
	return content, nil
}

// ParseFolderLink 从共享链接中解析文件夹ID，也接受裸文件夹ID
func ParseFolderLink(link string) (string, error) {
	if m := folderPathRe.FindStringSubmatch(link); len(m) == 2 {
		return m[1], nil
	}
	if m := folderQueryRe.FindStringSubmatch(link); len(m) == 2 {
		return m[1], nil
	}
	if bareFolderRe.MatchString(link) {
		return link, nil
	}
	return "", fmt.Errorf("无法从链接中解析文件夹ID: %s", link)
}
