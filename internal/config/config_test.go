package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfigAppliesDefaults 验证加载后缺省字段被正确填充
func TestLoadConfigAppliesDefaults(t *testing.T) {
	// 1. 只填写少量字段的配置文件，其余依赖默认值
	yamlContent := `
aliyun:
  api_key: "k-test"
  model: "qwen-plus"
pipeline:
  worker_count: 3
`
	tmpDir, err := os.MkdirTemp("", "config-test")
	require.NoError(t, err, "无法创建临时目录")
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	err = os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err, "无法写入临时配置文件")

	// 2. 加载配置
	config, err := LoadConfig(configPath)
	require.NoError(t, err, "加载配置不应返回错误")
	require.NotNil(t, config, "配置对象不应为 nil")

	// 3. 显式设置的字段保留，未设置的字段回落默认值
	assert.Equal(t, 3, config.Pipeline.WorkerCount, "显式设置的 worker_count 应被保留")
	assert.Equal(t, 128, config.Pipeline.QueueCapacity, "queue_capacity 应回落默认值")
	assert.Equal(t, ":8080", config.Server.Address, "服务器地址应回落默认值")
	assert.Equal(t, "eng", config.Extractor.OCRLanguage, "OCR语言应回落eng")
	assert.Equal(t, "5s", config.RabbitMQ.RetryInterval, "RabbitMQ重试间隔应回落默认值")
	assert.Equal(t, "1.0", config.ActivePipelineVersion, "管线版本应回落默认值")
}

// TestLoadConfigWithIncorrectMapSyntax 验证YAML缩进错误时map字段解析为空而非报错
func TestLoadConfigWithIncorrectMapSyntax(t *testing.T) {
	incorrectYAMLContent := `
aliyun:
  model: "qwen-plus"
  task_models: # map类型
  resume_score: "qwen-max"
  resume_profile: "qwen-plus"
`
	tmpDir, err := os.MkdirTemp("", "config-test-incorrect")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	err = os.WriteFile(configPath, []byte(incorrectYAMLContent), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)

	// go-yaml/v3 在解析这种格式时不会报错，但会将 task_models 解析为空 map
	require.NoError(t, err, "加载语法错误的配置也不应立即报错")
	require.NotNil(t, config, "配置对象不应为 nil")
	assert.Empty(t, config.Aliyun.TaskModels, "由于缩进错误，TaskModels map 应该是空的")
}

// TestGetModelForTask 验证任务专用模型的回落逻辑
func TestGetModelForTask(t *testing.T) {
	config := createDefaultConfig()
	config.Aliyun.Model = "qwen-plus"
	config.Aliyun.TaskModels = map[string]string{
		"resume_score": "qwen-max",
	}

	assert.Equal(t, "qwen-max", config.GetModelForTask("resume_score"), "有专用模型的任务应返回专用模型")
	assert.Equal(t, "qwen-plus", config.GetModelForTask("resume_profile"), "无专用模型的任务应返回默认模型")
}

// TestGetDuration 验证时长字符串解析及非法输入回落
func TestGetDuration(t *testing.T) {
	assert.Equal(t, 45*time.Second, GetDuration("45s", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("", time.Minute), "空字符串应回落默认值")
	assert.Equal(t, time.Minute, GetDuration("not-a-duration", time.Minute), "非法输入应回落默认值")
}
