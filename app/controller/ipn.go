package controller

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-amazonpay/app/factory"
	"github.com/vibast-solutions/ms-go-amazonpay/app/ipn"
)

type notificationHandler interface {
	HandleNotification(ctx context.Context, raw []byte) error
}

// IPNController receives Amazon Pay instant payment notifications.
type IPNController struct {
	handler notificationHandler
	logger  logrus.FieldLogger
}

func NewIPNController(handler notificationHandler) *IPNController {
	return &IPNController{
		handler: handler,
		logger:  factory.NewModuleLogger("ipn-controller"),
	}
}

// HandleNotification answers 200 with an empty body once the delivery is processed or
// ignored. Any failure answers 400 with the error text so the vendor stops retrying a
// message that will never validate.
func (c *IPNController) HandleNotification(ctx echo.Context) error {
	logger := factory.LoggerWithContext(c.logger, ctx)
	raw, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		logger.WithError(err).Warn("Failed to read IPN body")
		return ctx.String(http.StatusBadRequest, ipn.ErrMalformedPayload.Error())
	}

	if err := c.handler.HandleNotification(ctx.Request().Context(), raw); err != nil {
		logger.WithFields(logrus.Fields{
			"class": ipn.ClassOf(err),
		}).WithError(err).Warn("IPN rejected")
		return ctx.String(http.StatusBadRequest, err.Error())
	}

	return ctx.NoContent(http.StatusOK)
}
