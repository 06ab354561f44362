package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"cv-match-go/internal/config"
	"cv-match-go/internal/tracing"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var rabbitTracer = otel.Tracer("cv-match-go/storage/rabbitmq")

// MessageQueue 消息队列接口
type MessageQueue interface {
	// PublishMessage 发布消息
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error

	// PublishJSON 发布JSON格式消息
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error

	// EnsureExchange 确保交换机存在
	EnsureExchange(exchangeName, exchangeType string, durable bool) error

	// EnsureQueue 确保队列存在
	EnsureQueue(queueName string, durable bool) error

	// BindQueue 绑定队列到交换机
	BindQueue(queueName, exchangeName, routingKey string) error

	// Close 关闭连接
	Close() error
}

// 确保RabbitMQ实现了MessageQueue接口
var _ MessageQueue = (*RabbitMQ)(nil)

// RabbitMQ 提供消息队列功能
type RabbitMQ struct {
	conn         *amqp.Connection
	channelPool  sync.Pool
	exchangeMap  map[string]bool // 已声明的exchange
	queueMap     map[string]bool // 已声明的queue
	bindingMap   map[string]bool // 已创建的binding, key格式: "exchange:queue:routingKey"
	publishMutex sync.Mutex
	cfg          *config.RabbitMQConfig
}

// NewRabbitMQ 创建RabbitMQ客户端
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器 (%s): %w", cfg.URL, err)
	}

	mq := &RabbitMQ{
		conn:        conn,
		exchangeMap: make(map[string]bool),
		queueMap:    make(map[string]bool),
		bindingMap:  make(map[string]bool),
		cfg:         cfg,
	}

	mq.channelPool = sync.Pool{
		New: func() interface{} {
			ch, errPool := conn.Channel()
			if errPool != nil {
				log.Printf("创建RabbitMQ通道失败: %v", errPool)
				return nil
			}
			return ch
		},
	}

	testCh := mq.getChannel()
	if testCh == nil {
		conn.Close()
		return nil, fmt.Errorf("无法创建RabbitMQ通道")
	}
	mq.putChannel(testCh)

	log.Printf("成功连接到RabbitMQ服务器: %s", cfg.URL)
	return mq, nil
}

// SetupMatchPipelineTopology 声明匹配流水线所需的交换机、队列与绑定
// 拓扑:
//   - resume_events (direct): resume.uploaded -> raw_resume_queue
//     resume.parsed -> resume_parsing_queue
//   - match_events  (direct): match.needed    -> job_matching_queue
func (r *RabbitMQ) SetupMatchPipelineTopology() error {
	type binding struct {
		exchange   string
		queue      string
		routingKey string
	}
	bindings := []binding{
		{r.cfg.ResumeEventsExchange, r.cfg.RawResumeQueue, r.cfg.UploadedRoutingKey},
		{r.cfg.ResumeEventsExchange, r.cfg.ResumeParsingQueue, r.cfg.ParsedRoutingKey},
		{r.cfg.MatchEventsExchange, r.cfg.JobMatchingQueue, r.cfg.MatchNeededRoutingKey},
	}

	for _, b := range bindings {
		if b.exchange == "" || b.queue == "" || b.routingKey == "" {
			return fmt.Errorf("消息流水线拓扑配置不完整: exchange=%q queue=%q routingKey=%q", b.exchange, b.queue, b.routingKey)
		}
		if err := r.EnsureExchange(b.exchange, "direct", true); err != nil {
			return err
		}
		if err := r.EnsureQueue(b.queue, true); err != nil {
			return err
		}
		if err := r.BindQueue(b.queue, b.exchange, b.routingKey); err != nil {
			return err
		}
	}
	return nil
}

// 获取可用通道
func (r *RabbitMQ) getChannel() *amqp.Channel {
	ch := r.channelPool.Get()
	if ch == nil {
		newCh, err := r.conn.Channel()
		if err != nil {
			log.Printf("创建新RabbitMQ通道失败: %v", err)
			return nil
		}
		return newCh
	}
	return ch.(*amqp.Channel)
}

// 归还通道到池
func (r *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch != nil {
		r.channelPool.Put(ch)
	}
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// EnsureExchange 确保exchange存在
func (r *RabbitMQ) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	if exchangeName == "" {
		return fmt.Errorf("exchange名称不能为空")
	}
	// 默认交换机不允许显式声明
	if exchangeName == "amq.default" || exchangeName == "default" {
		return fmt.Errorf("不能声明默认交换机 '%s'", exchangeName)
	}

	if _, exists := r.exchangeMap[exchangeName]; exists {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	err := ch.ExchangeDeclare(
		exchangeName,
		exchangeType,
		durable,
		false, // 自动删除
		false, // 内部专用
		false, // 非阻塞
		nil,
	)
	if err != nil {
		return fmt.Errorf("声明exchange失败: %w", err)
	}

	r.exchangeMap[exchangeName] = true
	log.Printf("已确保exchange存在: '%s'", exchangeName)
	return nil
}

// EnsureQueue 确保队列存在
func (r *RabbitMQ) EnsureQueue(queueName string, durable bool) error {
	if _, exists := r.queueMap[queueName]; exists {
		// 本地缓存命中时仍用被动声明校验服务端状态
		ch := r.getChannel()
		if ch == nil {
			return fmt.Errorf("无法获取RabbitMQ通道")
		}
		defer r.putChannel(ch)

		_, err := ch.QueueDeclarePassive(
			queueName,
			durable,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			// 被动声明失败说明队列实际不存在或参数不匹配，踢出缓存以便重建
			delete(r.queueMap, queueName)
			return fmt.Errorf("被动声明队列 '%s' 失败 (可能不存在或参数不匹配): %w", queueName, err)
		}
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	_, err := ch.QueueDeclare(
		queueName,
		durable,
		false, // 自动删除
		false, // 独占
		false, // 非阻塞
		nil,
	)
	if err != nil {
		return fmt.Errorf("声明队列失败: %w", err)
	}

	r.queueMap[queueName] = true
	log.Printf("已确保队列存在: %s", queueName)
	return nil
}

// BindQueue 绑定队列到exchange
func (r *RabbitMQ) BindQueue(queueName, exchangeName, routingKey string) error {
	bindingKey := fmt.Sprintf("%s:%s:%s", exchangeName, queueName, routingKey)
	if _, exists := r.bindingMap[bindingKey]; exists {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	err := ch.QueueBind(
		queueName,
		routingKey,
		exchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("绑定队列到exchange失败: %w", err)
	}

	r.bindingMap[bindingKey] = true
	log.Printf("已绑定队列 %s 到exchange %s，路由键: %s", queueName, exchangeName, routingKey)
	return nil
}

// PublishMessage 发布消息到exchange
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	var deliveryMode uint8 = 1 // 非持久化
	if persistent {
		deliveryMode = 2 // 持久化
	}

	return ch.PublishWithContext(
		ctx,
		exchangeName,
		routingKey,
		false, // 强制
		false, // 立即
		amqp.Publishing{
			DeliveryMode: deliveryMode,
			ContentType:  "application/json",
			Body:         message,
			Timestamp:    time.Now(),
		},
	)
}

// PublishJSON 发布JSON格式的消息
func (r *RabbitMQ) PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("JSON序列化失败: %w", err)
	}

	return r.PublishMessage(ctx, exchangeName, routingKey, jsonData, persistent)
}

// StartConsumer 启动消费者处理函数
// handler返回true则Ack，返回false则Nack并重新入队
// 关闭返回的channel可停止消费者
func (r *RabbitMQ) StartConsumer(queueName string, prefetchCount int, handler func([]byte) bool) (chan struct{}, error) {
	stopCh := make(chan struct{})

	ch := r.getChannel()
	if ch == nil {
		return nil, fmt.Errorf("无法获取RabbitMQ通道")
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		r.putChannel(ch)
		return nil, fmt.Errorf("设置QoS失败: %w", err)
	}

	deliveries, err := ch.Consume(
		queueName,
		"",    // 消费者标签，留空由server生成唯一标签
		false, // 自动确认
		false, // 独占
		false, // 非本地
		false, // 非阻塞
		nil,
	)
	if err != nil {
		r.putChannel(ch)
		return nil, fmt.Errorf("注册消费者失败: %w", err)
	}

	go func() {
		defer r.putChannel(ch)
		defer log.Printf("RabbitMQ消费者已停止: %s", queueName)

		log.Printf("RabbitMQ消费者已启动，队列: %s, 预取数量: %d", queueName, prefetchCount)

		for {
			select {
			case <-stopCh:
				return
			case delivery, ok := <-deliveries:
				if !ok {
					log.Println("RabbitMQ通道已关闭")
					return
				}

				r.dispatchDelivery(queueName, delivery, handler)
			}
		}
	}()

	return stopCh, nil
}

// dispatchDelivery 处理单条消息并按结果Ack/Nack，每条消息一个consumer span
func (r *RabbitMQ) dispatchDelivery(queueName string, delivery amqp.Delivery, handler func([]byte) bool) {
	_, span := rabbitTracer.Start(context.Background(), "rabbitmq.consume "+queueName,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination", queueName),
			attribute.Int("messaging.message_payload_size_bytes", len(delivery.Body)),
		))
	defer span.End()

	if handler(delivery.Body) {
		if err := delivery.Ack(false); err != nil {
			log.Printf("确认消息失败: %v", err)
			tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
			return
		}
		span.SetStatus(codes.Ok, "")
		return
	}

	// 处理失败，拒绝并重新入队
	tracing.RecordRabbitMQNack(span, delivery.MessageId, "handler rejected message, requeue")
	if err := delivery.Nack(false, true); err != nil {
		log.Printf("拒绝消息失败: %v", err)
	}
}
