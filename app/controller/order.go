package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-amazonpay/app/amazonpay"
	"github.com/vibast-solutions/ms-go-amazonpay/app/factory"
	"github.com/vibast-solutions/ms-go-amazonpay/app/mapper"
	"github.com/vibast-solutions/ms-go-amazonpay/app/service"
	"github.com/vibast-solutions/ms-go-amazonpay/app/types"
)

type OrderController struct {
	gatewayService *service.GatewayService
	logger         logrus.FieldLogger
}

func NewOrderController(gatewayService *service.GatewayService) *OrderController {
	return &OrderController{
		gatewayService: gatewayService,
		logger:         factory.NewModuleLogger("orders-controller"),
	}
}

func (c *OrderController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *OrderController) PrepareCheckout(ctx echo.Context) error {
	req, err := types.NewCheckoutRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	redirectURL, err := c.gatewayService.PrepareCheckout(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Prepare checkout failed")
	}

	return ctx.JSON(http.StatusOK, &types.RedirectResponse{RedirectURL: redirectURL})
}

func (c *OrderController) CompleteCheckout(ctx echo.Context) error {
	req, err := types.NewCheckoutRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	order, err := c.gatewayService.CompleteCheckout(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Complete checkout failed")
	}

	return ctx.JSON(http.StatusOK, &types.OrderEnvelopeResponse{Order: mapper.OrderToResponse(order)})
}

func (c *OrderController) RefundOrder(ctx echo.Context) error {
	req, err := types.NewRefundOrderRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	refund, err := c.gatewayService.RefundOrder(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Refund order failed")
	}

	return ctx.JSON(http.StatusCreated, &types.RefundEnvelopeResponse{Refund: mapper.RefundToResponse(refund)})
}

func (c *OrderController) ReconcileOrder(ctx echo.Context) error {
	req, err := types.NewReconcileOrderRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	order, err := c.gatewayService.ReconcileOrder(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Reconcile order failed")
	}

	return ctx.JSON(http.StatusOK, &types.OrderEnvelopeResponse{Order: mapper.OrderToResponse(order)})
}

func (c *OrderController) GetPaymentState(ctx echo.Context) error {
	req, err := types.NewGetPaymentStateRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	state, err := c.gatewayService.GetOrderPaymentState(ctx.Request().Context(), req.GetOrderID(), req.GetRefresh())
	if err != nil {
		return c.writeServiceError(ctx, err, "Get payment state failed")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentStateResponse{State: mapper.PaymentStateToResponse(state)})
}

func (c *OrderController) writeServiceError(ctx echo.Context, err error, logMessage string) error {
	logger := factory.LoggerWithContext(c.logger, ctx)
	var apiErr *amazonpay.APIError
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidOrderID):
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrOrderNotFound):
		return c.writeError(ctx, http.StatusNotFound, "order not found")
	case errors.Is(err, service.ErrWrongGateway),
		errors.Is(err, service.ErrNoCharge),
		errors.Is(err, service.ErrConcurrentUpdate),
		errors.Is(err, service.ErrCheckoutConstraints):
		return c.writeError(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrCheckoutDeclined),
		errors.Is(err, service.ErrCheckoutCanceled),
		errors.Is(err, service.ErrCheckoutFailed):
		return c.writeError(ctx, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &apiErr):
		logger.WithError(err).Warn(logMessage)
		return c.writeError(ctx, http.StatusBadGateway, apiErr.Error())
	default:
		logger.WithError(err).Error(logMessage)
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}

func (c *OrderController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
