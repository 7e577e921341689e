package market

import "errors"

// Code is a machine-readable rejection reason. Handlers surface it to the
// caller so the UI can render a specific message.
type Code string

const (
	// Validation (rejected at placement, no state change).
	CodePriceRangeInvalid Code = "price_range_invalid"
	CodeLeadTimeTooShort  Code = "lead_time_too_short"
	CodeStakeInvalid      Code = "stake_invalid"
	CodeBettorRequired    Code = "bettor_required"

	// Sequencing (rejected at settlement, operation is atomic).
	CodePriceInvalid     Code = "price_invalid"
	CodeWindowNotElapsed Code = "window_not_elapsed"
	CodePriceAlreadySet  Code = "price_already_set"
	CodePriceNotSet      Code = "price_not_set"
	CodeBetNotResolved   Code = "bet_not_resolved"
	CodeBetLost          Code = "lost_bet"
	CodeAlreadyClaimed   Code = "already_claimed"
	CodeNotBetOwner      Code = "not_bet_owner"

	// Lookups.
	CodeBetNotFound    Code = "bet_not_found"
	CodeBucketNotFound Code = "bucket_not_found"
)

type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

var (
	ErrPriceRangeInvalid = &Error{CodePriceRangeInvalid, "priceMin must be lower than priceMax and non-negative"}
	ErrLeadTimeTooShort  = &Error{CodeLeadTimeTooShort, "target timestamp is closer than the minimum lead time"}
	ErrStakeInvalid      = &Error{CodeStakeInvalid, "stake must be a positive integer amount"}
	ErrBettorRequired    = &Error{CodeBettorRequired, "bettor address required"}

	ErrPriceInvalid     = &Error{CodePriceInvalid, "resolved price must be non-negative"}
	ErrWindowNotElapsed = &Error{CodeWindowNotElapsed, "bucket window has not elapsed yet"}
	ErrPriceAlreadySet  = &Error{CodePriceAlreadySet, "resolved price already set for bucket"}
	ErrPriceNotSet      = &Error{CodePriceNotSet, "bucket has no resolved price"}
	ErrBetNotResolved   = &Error{CodeBetNotResolved, "bet not yet resolved"}
	ErrBetLost          = &Error{CodeBetLost, "lost bet"}
	ErrAlreadyClaimed   = &Error{CodeAlreadyClaimed, "bet already claimed"}
	ErrNotBetOwner      = &Error{CodeNotBetOwner, "caller is not the bet owner"}

	ErrBetNotFound    = &Error{CodeBetNotFound, "bet not found"}
	ErrBucketNotFound = &Error{CodeBucketNotFound, "bucket not found"}
)

// CodeOf extracts the market code from err, or "" for non-market errors.
func CodeOf(err error) Code {
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}
