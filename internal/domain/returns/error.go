package returns

import "errors"

var (
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrProfileNotFound      = errors.New("pos profile not found")
	ErrNotReturnable        = errors.New("invoice cannot be returned")
	ErrEmptyReturn          = errors.New("no items selected for return")
	ErrInsufficientQty      = errors.New("nothing left to return for the selected items")
	ErrRefundModeNotAllowed = errors.New("mode of payment is not allowed for return refunds")
)
