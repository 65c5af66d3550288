package adapter

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"ProgressSync/internal/config"
	"ProgressSync/internal/interfaces"

	"github.com/sirupsen/logrus"
)

// Factory 评测平台客户端工厂函数签名
// 入参：平台配置、日志实例
// 出参：实现 JudgeClient 接口的客户端实例
type Factory func(cfg *config.JudgeConfig, logger *logrus.Logger) interfaces.JudgeClient

// ========== 全局工厂函数注册表 ==========
var (
	registryMu      sync.RWMutex
	factoryRegistry = make(map[string]Factory)
)

// Register 供适配器 init 函数调用，注册工厂函数
func Register(name string, factory Factory) {
	if factory == nil {
		panic(fmt.Sprintf("平台%s的工厂函数不能为nil", name))
	}
	name = strings.ToLower(name)
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := factoryRegistry[name]; exists {
		logrus.Warnf("平台%s的适配器已注册，将覆盖原有实现", name)
	}
	factoryRegistry[name] = factory
}

// GetFactory 获取指定平台的工厂函数
func GetFactory(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := factoryRegistry[strings.ToLower(name)]
	return factory, ok
}

// ListFactories 列出所有已注册的平台（按名称排序）
func ListFactories() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factoryRegistry))
	for name := range factoryRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewJudgeClient 按配置中的平台名称创建客户端
func NewJudgeClient(cfg *config.JudgeConfig, logger *logrus.Logger) (interfaces.JudgeClient, error) {
	factory, ok := GetFactory(cfg.Name)
	if !ok {
		return nil, fmt.Errorf("未支持的评测平台: %s（已注册：%v）", cfg.Name, ListFactories())
	}
	client := factory(cfg, logger)
	if client == nil {
		return nil, fmt.Errorf("平台%s的工厂函数返回nil", cfg.Name)
	}
	logger.WithField("judge", client.Name()).Info("评测平台客户端初始化成功")
	return client, nil
}
