package service

import (
	"errors"

	"github.com/vibast-solutions/ms-go-amazonpay/app/ipn"
)

var (
	ErrInvalidRequest = errors.New("invalid request")

	ErrOrderNotFound  = ipn.NewError(ipn.ClassDomain, "order not found")
	ErrInvalidOrderID = ipn.NewError(ipn.ClassDomain, "Invalid order ID")
	ErrWrongGateway   = ipn.NewError(ipn.ClassDomain, "is not paid with Amazon")
	ErrNotImplemented = ipn.NewError(ipn.ClassDomain, "Not Implemented")

	ErrConcurrentUpdate = errors.New("order was modified concurrently, giving up")
	ErrNoCharge         = errors.New("No charge to refund on this order")
	ErrRefundFailed     = errors.New("refund could not be recorded")

	ErrCheckoutDeclined    = errors.New("there was a problem with previously declined transaction")
	ErrCheckoutCanceled    = errors.New("the transaction was canceled by the buyer")
	ErrCheckoutFailed      = errors.New("checkout session could not be completed")
	ErrCheckoutConstraints = errors.New("checkout session has unresolved constraints")
)
