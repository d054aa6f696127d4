package quote

import (
	apperrors "shakespeare-quote-api/pkg/errors"
)

// invalidFilter 构造带细节的过滤器校验错误
func invalidFilter(detail string) error {
	return apperrors.ErrInvalidFilter.WithDetail(detail)
}
