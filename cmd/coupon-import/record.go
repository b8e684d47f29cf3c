package main

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-pricing/internal/domain/coupon"
	"github.com/xenking/promo-pricing/internal/domain/discount"
	"github.com/xenking/promo-pricing/internal/jsonx"
)

// parseRecord decodes one JSON line into an active coupon owned by tenantID.
func parseRecord(line []byte, tenantID string) (coupon.Coupon, error) {
	c := coupon.Coupon{TenantID: tenantID, Active: true}
	var hasValue bool

	d := jx.DecodeBytes(line)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		switch string(key) {
		case "code":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "code")
			}
			c.Code = coupon.NormalizeCode(s)
		case "discount_type":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "discount_type")
			}
			c.DiscountType = discount.ParseKind(s)
		case "discount_value":
			v, err := jsonx.Decimal(d)
			if err != nil {
				return errors.Wrap(err, "discount_value")
			}
			c.DiscountValue = v
			hasValue = true
		case "usage_limit":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "usage_limit")
			}
			c.UsageLimit = &v
		case "expiry_date":
			t, err := jsonx.Time(d)
			if err != nil {
				return errors.Wrap(err, "expiry_date")
			}
			c.ExpiryDate = t
		case "min_order_value":
			v, err := jsonx.Decimal(d)
			if err != nil {
				return errors.Wrap(err, "min_order_value")
			}
			c.MinOrderValue = decimal.NewNullDecimal(v)
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return coupon.Coupon{}, err
	}

	switch {
	case c.Code == "":
		return coupon.Coupon{}, errors.New("code is required")
	case c.DiscountType == "":
		return coupon.Coupon{}, errors.New("discount_type is required")
	case !hasValue || c.DiscountValue.IsNegative():
		return coupon.Coupon{}, errors.New("discount_value must be a non-negative number")
	case c.UsageLimit != nil && *c.UsageLimit < 0:
		return coupon.Coupon{}, errors.New("usage_limit must be non-negative")
	case c.UsageLimit != nil && *c.UsageLimit > coupon.MaxUsageLimit:
		return coupon.Coupon{}, errors.Errorf("usage_limit must be at most %d", coupon.MaxUsageLimit)
	case c.ExpiryDate.IsZero():
		return coupon.Coupon{}, errors.New("expiry_date is required")
	case c.MinOrderValue.Valid && c.MinOrderValue.Decimal.IsNegative():
		return coupon.Coupon{}, errors.New("min_order_value must be non-negative")
	}
	return c, nil
}
