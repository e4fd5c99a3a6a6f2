package api

import (
	"context"

	"storyharness/internal/config"
	"storyharness/internal/logger"
	"storyharness/internal/service"
	"storyharness/internal/storage"
	"storyharness/internal/suite"
	"storyharness/pkg/model"
)

// Service 服务接口
type Service interface {
	// StartSession 启动会话
	StartSession(cfg *config.Config) (model.SessionID, error)

	// RunSuite 运行场景套件
	RunSuite(ctx context.Context, id model.SessionID, filter suite.Filter, testLogger suite.TestLogger) (suite.Results, error)

	// ListScenarios 列出场景
	ListScenarios() []string

	// SubscribeEvents 订阅事件
	SubscribeEvents(id model.SessionID) (<-chan model.Event, error)

	// StopSession 停止会话
	StopSession(id model.SessionID) error
}

// NewService 创建并返回服务接口实现；journal 可为 nil
func NewService(l logger.Logger, journal *storage.Journal) Service {
	return service.New(l, journal)
}
