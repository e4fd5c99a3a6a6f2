// Package service 实现 pkg/api.Service：管理会话并运行场景套件。
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"storyharness/internal/config"
	"storyharness/internal/harness"
	"storyharness/internal/logger"
	"storyharness/internal/scenarios"
	"storyharness/internal/session"
	"storyharness/internal/storage"
	"storyharness/internal/suite"
	"storyharness/pkg/model"
)

// ErrSessionNotFound 会话不存在
var ErrSessionNotFound = errors.New("session not found")

const eventBuffer = 256

// Service 会话与套件运行服务
type Service struct {
	sessions *session.Manager
	journal  *storage.Journal
	log      logger.Logger
}

// New 创建服务；journal 可为 nil，此时不落库
func New(l logger.Logger, journal *storage.Journal) *Service {
	if l == nil {
		l = logger.NewNop()
	}
	return &Service{
		sessions: session.NewManager(l),
		journal:  journal,
		log:      l,
	}
}

// StartSession 按配置创建 harness 与会话
func (s *Service) StartSession(cfg *config.Config) (model.SessionID, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	id := model.SessionID(uuid.NewString())
	events := make(chan model.Event, eventBuffer)
	opts := []harness.Option{harness.WithEvents(events), harness.WithSession(id)}
	if s.journal != nil {
		opts = append(opts, harness.WithRecorder(s.journal.Recorder(id)))
	}
	h, err := harness.New(cfg, s.log.With("session", string(id)), opts...)
	if err != nil {
		return "", err
	}
	if s.journal != nil {
		if err := s.journal.StartRun(context.Background(), id, cfg.Harness.Mode); err != nil {
			_ = h.Close()
			return "", fmt.Errorf("start run: %w", err)
		}
	}
	s.sessions.Create(id, h, events)
	return id, nil
}

// RunSuite 顺序运行场景目录，filter 为 nil 时全部运行
func (s *Service) RunSuite(ctx context.Context, id model.SessionID, filter suite.Filter, testLogger suite.TestLogger) (suite.Results, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return suite.Results{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := sess.Begin(); err != nil {
		return suite.Results{}, err
	}

	h := sess.Harness
	cfg := h.Config()
	stories, err := h.Fixtures().Stories("stories")
	if err != nil {
		s.log.Warn("读取夹具故事失败，数据校验场景将跳过", "error", err.Error())
	}
	root := scenarios.Catalog(scenarios.Options{
		InitialTerm:    cfg.Harness.InitialTerm,
		Stories:        stories,
		AscendingFirst: cfg.Harness.Mode == harness.ModeSim,
	})
	runner := &suite.Runner{Factory: h.Factory(), Filter: filter, Logger: testLogger}

	s.log.Info("开始运行场景", "session", string(id), "mode", cfg.Harness.Mode)
	res := runner.Run(ctx, root)
	sess.End(res)

	passed, failed, skipped := res.Counts()
	s.log.Info("场景运行结束", "session", string(id), "passed", passed, "failed", failed, "skipped", skipped)
	if s.journal != nil {
		if err := s.journal.FinishRun(ctx, id, res); err != nil {
			return res, fmt.Errorf("finish run: %w", err)
		}
	}
	return res, nil
}

// ListScenarios 场景目录中的全部场景名
func (s *Service) ListScenarios() []string {
	ids := scenarios.Catalog(scenarios.Options{}).Scenarios()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// SubscribeEvents 订阅会话的交换事件
func (s *Service) SubscribeEvents(id model.SessionID) (<-chan model.Event, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.Events(), nil
}

// StopSession 关闭会话
func (s *Service) StopSession(id model.SessionID) error {
	if _, ok := s.sessions.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.sessions.Delete(id)
}
