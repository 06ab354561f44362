package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"cv-match-go/internal/config"
	"cv-match-go/internal/constants"
	"cv-match-go/internal/tracing"
	"cv-match-go/internal/types"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("cv-match-go/storage/redis")

// Redis操作前缀采样率配置
var redisKeySamplingRates = map[string]float64{
	constants.AppPrefix + ":" + constants.JobModulePrefix + ":":   0.25, // 岗位向量缓存操作采样25%
	constants.AppPrefix + ":" + constants.MatchModulePrefix + ":": 0.1,  // 匹配结果缓存操作采样10%
	constants.AppPrefix + ":" + constants.FileModulePrefix + ":":  0.05, // 文件去重操作采样5%
}

var (
	rnd      *rand.Rand
	rndMutex sync.Mutex
)

func init() {
	source := rand.NewSource(time.Now().UnixNano())
	rnd = rand.New(source)
}

// shouldSampleRedisOp 根据key前缀决定是否需要创建span
func shouldSampleRedisOp(key string) bool {
	if key == "" {
		return false
	}
	for prefix, rate := range redisKeySamplingRates {
		if strings.HasPrefix(key, prefix) {
			return randFloat() < rate
		}
	}
	// 默认采样率5%
	return randFloat() < 0.05
}

func randFloat() float64 {
	rndMutex.Lock()
	defer rndMutex.Unlock()
	return rnd.Float64()
}

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		// 重试设置
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,

		// 连接生命周期
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// GetMD5ExpireDuration 返回配置的MD5去重记录过期时间
func (r *Redis) GetMD5ExpireDuration() time.Duration {
	days := r.config.MD5RecordExpireDays
	if days <= 0 {
		days = constants.DefaultMD5RecordExpireDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// GetJobVectorExpireDuration 返回配置的JD向量缓存过期时间
func (r *Redis) GetJobVectorExpireDuration() time.Duration {
	hours := r.config.JobVectorExpireHours
	if hours <= 0 {
		hours = constants.DefaultJobVectorExpireHours
	}
	return time.Duration(hours) * time.Hour
}

// CheckAndAddRawFileMD5 检查并添加原始文件MD5到去重集合，是一个原子操作
// 返回 true 表示该MD5此前已存在（重复上传）
func (r *Redis) CheckAndAddRawFileMD5(ctx context.Context, md5Hex string) (exists bool, err error) {
	// 任何字段访问之前先挡掉未初始化的接收者
	if r == nil || r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}

	ctx, span := redisTracer.Start(ctx, "Redis.CheckAndAddRawFileMD5",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.redis.database", fmt.Sprintf("%d", r.config.DB)),
		attribute.String("net.peer.name", r.config.Address),
		attribute.String("db.operation", "EVAL"),
		attribute.String("db.redis.key", constants.KeyRawFileDedup),
		attribute.String("db.redis.member", md5Hex),
	)

	// Lua脚本保证检查与添加的原子性
	script := `
		local exists = redis.call('SISMEMBER', KEYS[1], ARGV[1])
		redis.call('SADD', KEYS[1], ARGV[1])
		redis.call('EXPIRE', KEYS[1], ARGV[2])
		return exists
	`

	expiry := r.GetMD5ExpireDuration().Seconds()

	res, err := r.Client.Eval(ctx, script, []string{constants.KeyRawFileDedup}, md5Hex, expiry).Result()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return false, fmt.Errorf("执行原子检查和添加操作失败: %w", err)
	}

	existsVal, ok := res.(int64)
	if !ok {
		err := fmt.Errorf("意外的Redis返回类型: %T", res)
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return false, err
	}

	exists = existsVal == 1
	span.SetAttributes(attribute.Bool("already_exists", exists))
	span.SetStatus(codes.Ok, "")

	return exists, nil
}

// RemoveRawFileMD5 从去重集合中移除原始文件MD5
// 上传流程失败回滚时调用，允许同一文件重新提交
func (r *Redis) RemoveRawFileMD5(ctx context.Context, md5Hex string) error {
	if r == nil || r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}

	ctx, span := redisTracer.Start(ctx, "Redis.RemoveRawFileMD5",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.redis.database", fmt.Sprintf("%d", r.config.DB)),
		attribute.String("net.peer.name", r.config.Address),
		attribute.String("db.operation", "SREM"),
		attribute.String("db.redis.key", constants.KeyRawFileDedup),
		attribute.String("db.redis.member", md5Hex),
	)

	result, err := r.Client.SRem(ctx, constants.KeyRawFileDedup, md5Hex).Result()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return fmt.Errorf("从集合中移除MD5失败: %w", err)
	}

	span.SetAttributes(attribute.Int64("removed_count", result))
	span.SetStatus(codes.Ok, "")

	return nil
}

// SetJobVector 将 JD 向量和模型版本存入 Redis HASH。
// 使用 HASH 可以将向量和模型版本存在同一个 key 下，便于管理。
func (r *Redis) SetJobVector(ctx context.Context, jobID string, vector []float64, modelVersion string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}

	cacheKey := fmt.Sprintf(constants.KeyJobDescriptionVector, jobID)

	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("序列化向量失败: %w", err)
	}

	// 使用 pipeline 原子化操作
	pipe := r.Client.Pipeline()
	pipe.HSet(ctx, cacheKey, "vector", vectorJSON)
	pipe.HSet(ctx, cacheKey, "model_version", modelVersion)
	pipe.Expire(ctx, cacheKey, r.GetJobVectorExpireDuration())

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("设置 JD 向量缓存失败: %w", err)
	}
	return nil
}

// GetJobVector 从 Redis HASH 中获取 JD 向量和模型版本。
// 调用方负责比对模型版本，版本不一致的向量不可复用
func (r *Redis) GetJobVector(ctx context.Context, jobID string) ([]float64, string, error) {
	if r.Client == nil {
		return nil, "", fmt.Errorf("redis client is not initialized")
	}

	cacheKey := fmt.Sprintf(constants.KeyJobDescriptionVector, jobID)

	// 使用 HMGet 一次性获取两个字段
	vals, err := r.Client.HMGet(ctx, cacheKey, "vector", "model_version").Result()
	if err != nil {
		return nil, "", err
	}

	if len(vals) < 2 {
		return nil, "", ErrNotFound
	}

	// 字段 "vector"
	if vals[0] == nil {
		return nil, "", fmt.Errorf("未找到JD向量缓存，jobID=%s: %w", jobID, ErrNotFound)
	}
	vectorJSON, ok := vals[0].(string)
	if !ok || vectorJSON == "" {
		return nil, "", fmt.Errorf("向量缓存格式错误")
	}
	var vector []float64
	if err := json.Unmarshal([]byte(vectorJSON), &vector); err != nil {
		return nil, "", fmt.Errorf("反序列化向量失败: %w", err)
	}

	// 字段 "model_version"
	if vals[1] == nil {
		return vector, "", fmt.Errorf("向量模型版本未找到")
	}
	modelVersion, ok := vals[1].(string)
	if !ok {
		return vector, "", fmt.Errorf("向量模型版本格式错误")
	}

	return vector, modelVersion, nil
}

// SetMatchResult 将匹配结果缓存为JSON字符串
func (r *Redis) SetMatchResult(ctx context.Context, jobID, submissionUUID string, result *types.MatchResult, ttl time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	if result == nil {
		return fmt.Errorf("匹配结果不能为空")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("序列化匹配结果失败: %w", err)
	}

	key := fmt.Sprintf(constants.KeyMatchResult, jobID, submissionUUID)
	return r.Set(ctx, key, string(payload), ttl)
}

// GetMatchResult 获取缓存的匹配结果，未命中时返回 ErrNotFound
func (r *Redis) GetMatchResult(ctx context.Context, jobID, submissionUUID string) (*types.MatchResult, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("redis client is not initialized")
	}

	key := fmt.Sprintf(constants.KeyMatchResult, jobID, submissionUUID)
	val, err := r.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var result types.MatchResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return nil, fmt.Errorf("反序列化匹配结果失败: %w", err)
	}
	return &result, nil
}

// Get 获取键的值
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span

	// 根据key前缀决定是否创建span
	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Get", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "GET"),
			attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
			// 设置标志位，表示不要在子span中传播，避免与redisotel hook产生的span重复
			attribute.Bool("otel.propagate_to_child", false),
		)
	}

	val, err := r.Client.Get(ctx, key).Result()

	if span != nil {
		if err != nil {
			// 对于key不存在的情况，不应该算作错误
			if err == redis.Nil {
				span.SetStatus(codes.Ok, "key not found")
				span.SetAttributes(attribute.Bool("db.redis.key_exists", false))
			} else {
				tracing.RecordError(span, err, tracing.ErrorTypeRedis)
			}
			return "", err
		}

		span.SetAttributes(
			attribute.Bool("db.redis.key_exists", true),
			attribute.Int("db.redis.value_length", len(val)),
		)
		span.SetStatus(codes.Ok, "")
	}

	return val, err
}

// Set 设置键的值
func (r *Redis) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	var span trace.Span

	if shouldSampleRedisOp(key) {
		ctx, span = redisTracer.Start(ctx, "Redis.Set", trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "SET"),
			attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
			attribute.Int("db.redis.value_length", len(value)),
			attribute.Bool("otel.propagate_to_child", false),
		)

		if expiration > 0 {
			span.SetAttributes(attribute.Int64("db.redis.expiration_ms", expiration.Milliseconds()))
		}
	}

	err := r.Client.Set(ctx, key, value, expiration).Err()

	if span != nil {
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeRedis)
			return err
		}
		span.SetStatus(codes.Ok, "")
	}

	return err
}

// CacheShortlist 将岗位入围名单(排序后的SubmissionUUID列表)缓存到Redis的ZSET中。
func (r *Redis) CacheShortlist(ctx context.Context, key string, entries []types.RankedSubmission, ttl time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	if len(entries) == 0 {
		return nil // 不缓存空结果
	}

	pipe := r.Client.Pipeline()

	// 先删除旧的key，确保缓存是最新的
	pipe.Del(ctx, key)

	members := make([]redis.Z, len(entries))
	for i, e := range entries {
		members[i] = redis.Z{
			Score:  e.MatchScore,
			Member: e.SubmissionUUID,
		}
	}

	pipe.ZAdd(ctx, key, members...)
	pipe.Expire(ctx, key, ttl)

	_, err := pipe.Exec(ctx)
	return err
}

// GetCachedShortlist 从Redis ZSET中分页获取入围名单，按综合分从高到低。
func (r *Redis) GetCachedShortlist(ctx context.Context, key string, cursor, limit int64) (uuids []string, totalCount int64, err error) {
	ctx, span := redisTracer.Start(ctx, "GetCachedShortlist", trace.WithAttributes(
		semconv.DBSystemRedis,
		attribute.String("redis.key", tracing.SafeRedisKey(key)),
		attribute.Int64("redis.cursor", cursor),
		attribute.Int64("redis.limit", limit),
	))
	defer span.End()

	pipe := r.Client.Pipeline()
	countCmd := pipe.ZCard(ctx, key)
	rangeCmd := pipe.ZRevRange(ctx, key, cursor, cursor+limit-1)
	_, err = pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return nil, 0, err
	}

	uuids, err = rangeCmd.Result()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return nil, 0, fmt.Errorf("failed to get shortlist UUIDs: %w", err)
	}

	totalCount, err = countCmd.Result()
	if err != nil {
		return uuids, 0, err
	}

	return uuids, totalCount, nil
}
