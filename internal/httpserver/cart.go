package httpserver

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mstoica/storefront/internal/cart"
	"github.com/mstoica/storefront/internal/logging"
	"github.com/mstoica/storefront/internal/middleware/auth"
)

type CartHTTP struct {
	Svc *cart.Service
}

func (h *CartHTTP) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.get_cart")

	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}

	view, err := h.Svc.GetCart(ctx, userID)
	if err != nil {
		l.Error("get_cart_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot load cart")
	}
	return c.JSON(http.StatusOK, view)
}

func (h *CartHTTP) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.add_item")

	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	productID, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		l.Warn("add_item_failed", "status", 400, "reason", "id not a uuid", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "product id is not a uuid")
	}

	if err := h.Svc.AddItem(ctx, userID, productID); err != nil {
		switch {
		case errors.Is(err, cart.ErrProductMissing):
			l.Warn("add_item_failed", "status", 404, "product_id", productID)
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		case errors.Is(err, cart.ErrAlreadyInCart):
			l.Warn("add_item_failed", "status", 409, "product_id", productID)
			return echo.NewHTTPError(http.StatusConflict, "product already in cart")
		case errors.Is(err, cart.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			l.Error("add_item_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot add product to cart")
		}
	}

	return h.GetCart(c)
}

func (h *CartHTTP) SetQuantity(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.set_quantity")

	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	productID, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "product id is not a uuid")
	}

	var req struct {
		Quantity uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.SetQuantity(ctx, userID, productID, req.Quantity); err != nil {
		switch {
		case errors.Is(err, cart.ErrValidation):
			l.Warn("set_quantity_failed", "status", 400, "quantity", req.Quantity)
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, cart.ErrNotInCart):
			l.Warn("set_quantity_failed", "status", 404, "product_id", productID)
			return echo.NewHTTPError(http.StatusNotFound, "product not in cart")
		default:
			l.Error("set_quantity_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot update quantity")
		}
	}

	return h.GetCart(c)
}

func (h *CartHTTP) RemoveFromCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.remove_item")

	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	productID, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "product id is not a uuid")
	}

	if err := h.Svc.RemoveItem(ctx, userID, productID); err != nil {
		l.Error("remove_item_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot remove product from cart")
	}

	return h.GetCart(c)
}
