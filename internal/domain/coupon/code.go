package coupon

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

const (
	codePrefix       = "PROMO"
	codeRandomLength = 8
	codeMaxAttempts  = 5
)

// ErrCodeSpaceExhausted is returned when no unused code could be generated.
var ErrCodeSpaceExhausted = errors.New("could not generate a unique coupon code")

// GenerateCode returns "PROMO" followed by 8 upper-case hex characters.
func GenerateCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return codePrefix + strings.ToUpper(id[:codeRandomLength])
}

// uniqueCode draws generated codes until exists reports one as free.
func uniqueCode(ctx context.Context, gen func() string, exists func(context.Context, string) (bool, error)) (string, error) {
	for range codeMaxAttempts {
		code := gen()
		taken, err := exists(ctx, code)
		if err != nil {
			return "", errors.Wrap(err, "check code")
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}
