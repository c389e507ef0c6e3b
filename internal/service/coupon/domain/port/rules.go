// internal/service/coupon/domain/port/rules.go
package port

import "context"

// EligibilityFact 是规则评估时可见的事实集合。
type EligibilityFact struct {
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	// Claimed 是该用户在这张券上已有的领取记录数。
	Claimed int64 `json:"claimed"`
}

// EligibilityRules 评估券面上配置的额外领取规则。
// rule 为空串时视为无限制，直接放行。
type EligibilityRules interface {
	Eligible(ctx context.Context, rule string, fact EligibilityFact) (bool, error)
}
