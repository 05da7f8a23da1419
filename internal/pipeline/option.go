package pipeline

import (
	"time"

	"github.com/rs/zerolog"
)

// ComponentOpt 组件选项类型，仅改变 Components 结构体内的字段
type ComponentOpt func(*Components)

// SettingOpt 设置选项类型，仅改变 Settings 结构体内的字段
type SettingOpt func(*Settings)

// ----- 组件选项 -----

// WithcompExtractor 设置文本提取器组件
func WithcompExtractor(extractor TextExtractor) ComponentOpt {
	return func(c *Components) {
		c.Extractor = extractor
	}
}

// WithcompAnalyzer 设置结构化分析器组件
func WithcompAnalyzer(analyzer ResumeAnalyzer) ComponentOpt {
	return func(c *Components) {
		c.Analyzer = analyzer
	}
}

// WithcompResultstore 设置结果存储组件
func WithcompResultstore(store ResultStore) ComponentOpt {
	return func(c *Components) {
		c.Store = store
	}
}

// WithcompResolver 设置远程文件夹解析器组件
func WithcompResolver(resolver FolderResolver) ComponentOpt {
	return func(c *Components) {
		c.Resolver = resolver
	}
}

// WithcompArchiver 设置文件归档组件
func WithcompArchiver(archiver FileArchiver) ComponentOpt {
	return func(c *Components) {
		c.Archiver = archiver
	}
}

// WithcompBatchrecorder 设置批次记录组件
func WithcompBatchrecorder(recorder BatchRecorder) ComponentOpt {
	return func(c *Components) {
		c.BatchRecorder = recorder
	}
}

// WithcompSnapshotcache 设置批次快照缓存组件
func WithcompSnapshotcache(cache SnapshotCache) ComponentOpt {
	return func(c *Components) {
		c.Snapshots = cache
	}
}

// WithcompJobcontextprovider 设置岗位上下文查询组件
func WithcompJobcontextprovider(provider JobContextProvider) ComponentOpt {
	return func(c *Components) {
		c.JobContexts = provider
	}
}

// ----- 设置选项 -----

// WithsetWorkercount 设置批次并发工作协程数
func WithsetWorkercount(n int) SettingOpt {
	return func(s *Settings) {
		if n > 0 {
			s.WorkerCount = n
		}
	}
}

// WithsetQueuecapacity 设置批次内部任务队列容量
func WithsetQueuecapacity(n int) SettingOpt {
	return func(s *Settings) {
		if n > 0 {
			s.QueueCapacity = n
		}
	}
}

// WithsetJobtimeout 设置单份简历端到端超时
func WithsetJobtimeout(d time.Duration) SettingOpt {
	return func(s *Settings) {
		if d > 0 {
			s.JobTimeout = d
		}
	}
}

// WithsetSnapshotttl 设置终态快照缓存的过期时间
func WithsetSnapshotttl(d time.Duration) SettingOpt {
	return func(s *Settings) {
		if d > 0 {
			s.SnapshotTTL = d
		}
	}
}

// WithsetEventrouting 设置领域事件的交换机和路由键
func WithsetEventrouting(exchange, scoredKey, batchKey string) SettingOpt {
	return func(s *Settings) {
		s.EventsExchange = exchange
		s.ScoredRoutingKey = scoredKey
		s.BatchRoutingKey = batchKey
	}
}

// WithsetPipelineversion 设置随记录落库的管线版本号
func WithsetPipelineversion(v string) SettingOpt {
	return func(s *Settings) {
		if v != "" {
			s.PipelineVersion = v
		}
	}
}

// WithsetLogger 设置日志记录器
func WithsetLogger(l zerolog.Logger) SettingOpt {
	return func(s *Settings) {
		s.Logger = l
	}
}
