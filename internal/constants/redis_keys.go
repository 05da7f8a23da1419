package constants

import "time"

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// BatchModulePrefix 批量上传模块
	BatchModulePrefix = "batch"

	// EntitySnapshot 批次快照实体
	EntitySnapshot = "snapshot"
	// EntityCancel 取消标记实体
	EntityCancel = "cancel"

	// KeyBatchSnapshot 终态批次快照缓存 (STRING, JSON)
	// 格式: app:batch:snapshot:{batchID}
	KeyBatchSnapshot = AppPrefix + ":" + BatchModulePrefix + ":" + EntitySnapshot + ":%s"

	// KeyBatchCancelFlag 批次取消标记 (STRING)
	// 格式: app:batch:cancel:{batchID}
	KeyBatchCancelFlag = AppPrefix + ":" + BatchModulePrefix + ":" + EntityCancel + ":%s"

	// KeyOutboxRelayLock 出箱轮询的跨实例互斥锁 (STRING, SETNX)
	// 格式: app:outbox:relay:lock
	KeyOutboxRelayLock = AppPrefix + ":outbox:relay:lock"
)

const (
	// BatchSnapshotTTL 终态快照在缓存中的保留时长，过期后回源数据库
	BatchSnapshotTTL = 24 * time.Hour
)
