package outbox

import (
	"context"
	"encoding/json"
	"time"

	"resume-intake-go/internal/constants"
	"resume-intake-go/internal/logger"
	"resume-intake-go/internal/storage"
	"resume-intake-go/internal/storage/models"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPollingInterval = 5 * time.Second // 轮询outbox表的默认间隔
	defaultBatchSize       = 10              // 单次轮询处理的消息上限
	maxRetryCount          = 5               // 发布失败的最大重试次数
)

// 出箱消息状态
const (
	statusPending = "PENDING"
	statusSent    = "SENT"
	statusFailed  = "FAILED"
)

// DistributedLocker 跨实例互斥边界，多实例部署时保证单个活跃轮询者
type DistributedLocker interface {
	// AcquireLock 尝试获取锁，成功返回持有者标识，被占用返回空串
	AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error)
	// ReleaseLock 释放持有的锁，仅持有者标识匹配时生效
	ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error)
}

// MessageRelay 轮询出箱表并把领域事件发布到消息代理
// 行级 SKIP LOCKED 锁允许多实例并行消费互不干扰
type MessageRelay struct {
	db              *gorm.DB
	publisher       *storage.RabbitMQ
	locker          DistributedLocker
	logger          zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	done            chan struct{}
	tracer          trace.Tracer
}

// RelayOption MessageRelay的配置选项
type RelayOption func(*MessageRelay)

// WithPollingInterval 设置轮询间隔
func WithPollingInterval(d time.Duration) RelayOption {
	return func(r *MessageRelay) {
		if d > 0 {
			r.pollingInterval = d
		}
	}
}

// WithBatchSize 设置单次轮询的消息批量
func WithBatchSize(n int) RelayOption {
	return func(r *MessageRelay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithRelayLogger 设置日志记录器
func WithRelayLogger(l zerolog.Logger) RelayOption {
	return func(r *MessageRelay) {
		r.logger = l
	}
}

// WithRelayLock 启用分布式锁，同一时刻只有一个实例轮询出箱表
func WithRelayLock(locker DistributedLocker) RelayOption {
	return func(r *MessageRelay) {
		r.locker = locker
	}
}

// NewMessageRelay 创建消息中继
func NewMessageRelay(db *gorm.DB, publisher *storage.RabbitMQ, options ...RelayOption) *MessageRelay {
	r := &MessageRelay{
		db:              db,
		publisher:       publisher,
		logger:          logger.Component("outbox_relay"),
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		done:            make(chan struct{}),
		tracer:          otel.Tracer("resume-intake-go/outbox"),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Start 启动后台轮询
func (r *MessageRelay) Start() {
	r.logger.Info().Dur("interval", r.pollingInterval).Msg("出箱消息中继启动")
	ticker := time.NewTicker(r.pollingInterval)

	go func() {
		for {
			select {
			case <-r.done:
				ticker.Stop()
				r.logger.Info().Msg("出箱消息中继已停止")
				return
			case <-ticker.C:
				if err := r.poll(context.Background()); err != nil {
					r.logger.Error().Err(err).Msg("处理待发布消息失败")
				}
			}
		}
	}()
}

// Stop 停止轮询，在途批次处理完后退出
func (r *MessageRelay) Stop() {
	close(r.done)
}

// poll 单次轮询，配置了分布式锁时先抢占再处理
func (r *MessageRelay) poll(ctx context.Context) error {
	if r.locker == nil {
		return r.processPendingMessages(ctx)
	}

	lockValue, err := r.locker.AcquireLock(ctx, constants.KeyOutboxRelayLock, r.pollingInterval*2)
	if err != nil {
		return err
	}
	if lockValue == "" {
		// 锁被其他实例持有，本轮让出
		return nil
	}
	defer func() {
		if _, err := r.locker.ReleaseLock(ctx, constants.KeyOutboxRelayLock, lockValue); err != nil {
			r.logger.Warn().Err(err).Msg("释放出箱轮询锁失败")
		}
	}()

	return r.processPendingMessages(ctx)
}

// processPendingMessages 取一批待发布消息，发布并回写状态
// 获取和状态更新处于同一事务，SKIP LOCKED 跳过其他实例正在处理的行
func (r *MessageRelay) processPendingMessages(ctx context.Context) error {
	var messages []models.OutboxMessage

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", statusPending).
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return err
	}

	// 空轮询不产生追踪Span
	if len(messages) == 0 {
		return tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(
			attribute.Int("messaging.batch.message_count", len(messages)),
		),
	)
	defer span.End()

	for i := range messages {
		msg := &messages[i]
		err := r.publisher.PublishJSON(
			ctx,
			msg.TargetExchange,
			msg.TargetRoutingKey,
			json.RawMessage(msg.Payload),
			true,
		)

		if err != nil {
			msg.RetryCount++
			msg.ErrorMessage = err.Error()
			if msg.RetryCount >= maxRetryCount {
				msg.Status = statusFailed
			}
			r.logger.Warn().Err(err).
				Uint64("message_id", msg.ID).
				Str("aggregate_id", msg.AggregateID).
				Str("event_type", msg.EventType).
				Int("retry_count", msg.RetryCount).
				Msg("发布出箱消息失败")
		} else {
			now := time.Now()
			msg.Status = statusSent
			msg.ProcessedAt = &now
			msg.ErrorMessage = ""
		}

		// 更新失败回滚整批，消息留待下次轮询重新拾取
		if err := tx.Save(msg).Error; err != nil {
			return err
		}
	}

	return tx.Commit().Error
}
