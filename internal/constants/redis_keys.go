package constants

// Redis Key 前缀和格式常量
// 统一命名规范: cvmatch:{module}:{entity}:{unique_id}
const (
	// AppPrefix 所有Redis Key的统一应用前缀
	AppPrefix = "cvmatch"

	// JobModulePrefix 岗位模块
	JobModulePrefix = "job"
	// MatchModulePrefix 匹配模块
	MatchModulePrefix = "match"
	// FileModulePrefix 文件模块
	FileModulePrefix = "file"

	// EntityVector 向量实体
	EntityVector = "vector"
	// EntityResult 匹配结果实体
	EntityResult = "result"
	// EntityDedupSet 去重集合实体
	EntityDedupSet = "dedup_set"

	// KeyJobDescriptionVector JD向量缓存 (HASH: vector + model_version)
	// 格式: cvmatch:job:vector:{jobID}
	KeyJobDescriptionVector = AppPrefix + ":" + JobModulePrefix + ":" + EntityVector + ":%s"

	// KeyMatchResult 匹配结果缓存 (STRING, JSON)
	// 格式: cvmatch:match:result:{jobID}:{submissionUUID}
	KeyMatchResult = AppPrefix + ":" + MatchModulePrefix + ":" + EntityResult + ":%s:%s"

	// KeyRawFileDedup 原始文件MD5去重集合 (SET)
	// 格式: cvmatch:file:dedup_set
	KeyRawFileDedup = AppPrefix + ":" + FileModulePrefix + ":" + EntityDedupSet

	// KeyJobShortlist 岗位入围名单缓存 (ZSET, score=匹配分)
	// 格式: cvmatch:match:shortlist:{jobID}
	KeyJobShortlist = AppPrefix + ":" + MatchModulePrefix + ":shortlist:%s"
)
