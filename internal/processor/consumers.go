package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cv-match-go/internal/config"
	"cv-match-go/internal/logger"
	"cv-match-go/internal/storage"

	"github.com/rs/zerolog"
)

// 单条消息的处理时限，超过则放弃并Nack
const consumerHandleTimeout = 5 * time.Minute

// ConsumerManager 管理匹配流水线的RabbitMQ消费者
type ConsumerManager struct {
	cfg           *config.Config
	storage       *storage.Storage
	resumeService *ResumeService
	matchService  *MatchService
	logger        *zerolog.Logger

	stops []chan struct{}
}

// NewConsumerManager 创建消费者管理器
func NewConsumerManager(cfg *config.Config, storageManager *storage.Storage, resumeService *ResumeService, matchService *MatchService, zlog *zerolog.Logger) (*ConsumerManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	if storageManager == nil || storageManager.RabbitMQ == nil {
		return nil, fmt.Errorf("RabbitMQ未初始化")
	}
	if zlog == nil {
		nop := zerolog.Nop()
		zlog = &nop
	}
	return &ConsumerManager{
		cfg:           cfg,
		storage:       storageManager,
		resumeService: resumeService,
		matchService:  matchService,
		logger:        zlog,
	}, nil
}

// Start 启动全部消费者
func (m *ConsumerManager) Start() error {
	prefetch := m.cfg.RabbitMQ.PrefetchCount
	if prefetch <= 0 {
		prefetch = 1
	}

	if m.resumeService != nil {
		stop, err := m.storage.RabbitMQ.StartConsumer(m.cfg.RabbitMQ.RawResumeQueue, prefetch, m.handleUploadedMessage)
		if err != nil {
			return fmt.Errorf("启动简历上传消费者失败: %w", err)
		}
		m.stops = append(m.stops, stop)
	}

	stop, err := m.storage.RabbitMQ.StartConsumer(m.cfg.RabbitMQ.ResumeParsingQueue, prefetch, m.handleParsedMessage)
	if err != nil {
		return fmt.Errorf("启动解析事件消费者失败: %w", err)
	}
	m.stops = append(m.stops, stop)

	if m.matchService != nil {
		stop, err := m.storage.RabbitMQ.StartConsumer(m.cfg.RabbitMQ.JobMatchingQueue, prefetch, m.handleMatchNeededMessage)
		if err != nil {
			return fmt.Errorf("启动岗位匹配消费者失败: %w", err)
		}
		m.stops = append(m.stops, stop)
	}

	return nil
}

// Stop 停止全部消费者
func (m *ConsumerManager) Stop() {
	for _, stop := range m.stops {
		close(stop)
	}
	m.stops = nil
}

func (m *ConsumerManager) handleUploadedMessage(body []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), consumerHandleTimeout)
	defer cancel()
	ctx = m.logger.WithContext(ctx)

	var message storage.ResumeUploadedMessage
	if err := json.Unmarshal(body, &message); err != nil {
		// 格式损坏的消息重试无意义，确认后丢弃
		m.logger.Error().Err(err).Msg("简历上传消息反序列化失败，丢弃")
		return true
	}
	if message.SubmissionUUID == "" {
		m.logger.Error().Msg("简历上传消息缺少submission_uuid，丢弃")
		return true
	}

	if err := m.resumeService.ProcessUploadedResume(ctx, message); err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("submission_uuid", message.SubmissionUUID).Msg("处理简历上传消息失败")
		return false
	}
	return true
}

// handleParsedMessage 把解析完成事件转成匹配事件。
// 没有目标岗位的简历只入库不匹配，事件直接确认。
func (m *ConsumerManager) handleParsedMessage(body []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), consumerHandleTimeout)
	defer cancel()
	ctx = m.logger.WithContext(ctx)

	var message storage.ResumeParsedMessage
	if err := json.Unmarshal(body, &message); err != nil {
		m.logger.Error().Err(err).Msg("解析完成消息反序列化失败，丢弃")
		return true
	}
	if message.SubmissionUUID == "" || message.TargetJobID == "" {
		return true
	}

	matchMsg := storage.MatchNeededMessage{
		JobID:          message.TargetJobID,
		SubmissionUUID: message.SubmissionUUID,
		RequestedAt:    time.Now(),
	}
	if err := m.storage.RabbitMQ.PublishJSON(ctx, m.cfg.RabbitMQ.MatchEventsExchange, m.cfg.RabbitMQ.MatchNeededRoutingKey, matchMsg, true); err != nil {
		logger.FromContext(ctx).Error().Err(err).
			Str("submission_uuid", message.SubmissionUUID).
			Str("job_id", message.TargetJobID).
			Msg("发布匹配事件失败")
		return false
	}
	return true
}

func (m *ConsumerManager) handleMatchNeededMessage(body []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), consumerHandleTimeout)
	defer cancel()
	ctx = m.logger.WithContext(ctx)

	var message storage.MatchNeededMessage
	if err := json.Unmarshal(body, &message); err != nil {
		m.logger.Error().Err(err).Msg("匹配事件消息反序列化失败，丢弃")
		return true
	}
	if message.JobID == "" || message.SubmissionUUID == "" {
		m.logger.Error().Msg("匹配事件消息缺少job_id或submission_uuid，丢弃")
		return true
	}

	if err := m.matchService.HandleMatchNeeded(ctx, message); err != nil {
		logger.FromContext(ctx).Error().Err(err).
			Str("submission_uuid", message.SubmissionUUID).
			Str("job_id", message.JobID).
			Msg("处理匹配事件失败")
		return false
	}
	return true
}
