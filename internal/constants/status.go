package constants

// 简历提交处理状态机
// PENDING_PARSING -> PARSED -> MATCH_PENDING -> MATCHED
// 任一环节失败转入对应的 *_FAILED 终态，重复内容转入 CONTENT_DUPLICATE_SKIPPED
const (
	StatusPendingParsing          = "PENDING_PARSING"
	StatusParsingFailed           = "PARSING_FAILED"
	StatusContentDuplicateSkipped = "CONTENT_DUPLICATE_SKIPPED"
	StatusParsed                  = "PARSED"
	StatusMatchPending            = "MATCH_PENDING"
	StatusMatched                 = "MATCHED"
	StatusMatchFailed             = "MATCH_FAILED"
	StatusUploadProcessingFailed  = "UPLOAD_PROCESSING_FAILED"
)

// AllowedStatusesForMatch 允许进入匹配计算的状态集合
// PARSED 是正常入口，MATCH_FAILED/MATCHED 允许重新触发重算
var AllowedStatusesForMatch = map[string]bool{
	StatusParsed:       true,
	StatusMatchPending: true,
	StatusMatchFailed:  true,
	StatusMatched:      true,
}

// IsStatusAllowed 判断状态是否属于给定集合
func IsStatusAllowed(status string, allowed map[string]bool) bool {
	return allowed[status]
}
