package httpserver

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mstoica/storefront/internal/cart"
	"github.com/mstoica/storefront/internal/checkout"
	"github.com/mstoica/storefront/internal/inventory"
	"github.com/mstoica/storefront/internal/logging"
	"github.com/mstoica/storefront/internal/middleware/auth"
	"github.com/mstoica/storefront/internal/models"
	"github.com/mstoica/storefront/internal/order"
	"github.com/mstoica/storefront/internal/search"
	"github.com/mstoica/storefront/internal/util"
)

type OrderHTTP struct {
	Coordinator *checkout.Coordinator
	Lifecycle   *order.Lifecycle
	Repo        *order.GormRepo
	CartSvc     *cart.Service
	OrderIndex  *search.OrderIndex
}

func (h *OrderHTTP) Checkout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.checkout")

	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}

	var req checkout.Request
	if err := c.Bind(&req); err != nil {
		l.Warn("checkout_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	placed, err := h.Coordinator.Checkout(ctx, userID, req)
	if err != nil {
		var insufficient *inventory.InsufficientStockError
		var unavailable *inventory.ProductUnavailableError
		switch {
		case errors.As(err, &unavailable):
			l.Warn("checkout_failed", "status", 403, "product", unavailable.ProductName)
			return echo.NewHTTPError(http.StatusForbidden, echo.Map{
				"error":   unavailable.Error(),
				"product": unavailable.ProductName,
			})
		case errors.As(err, &insufficient):
			l.Warn("checkout_failed", "status", 403, "product", insufficient.ProductName, "available", insufficient.Available)
			return echo.NewHTTPError(http.StatusForbidden, echo.Map{
				"error":         insufficient.Error(),
				"product":       insufficient.ProductName,
				"max_available": insufficient.Available,
			})
		case errors.Is(err, checkout.ErrEmptyCart):
			l.Warn("checkout_failed", "status", 400, "reason", "empty cart")
			return echo.NewHTTPError(http.StatusBadRequest, "no items in cart")
		case errors.Is(err, checkout.ErrUserNotFound):
			return echo.NewHTTPError(http.StatusUnauthorized, "user not found")
		default:
			l.Error("checkout_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "checkout failed")
		}
	}

	cleared, err := h.CartSvc.GetCart(ctx, userID)
	if err != nil {
		// The order is already durable; report it even if the cart
		// read-back failed.
		l.Error("cart_readback_failed", "order_id", placed.ID, "error", err)
		cleared = &cart.View{Items: []cart.ItemView{}}
	}

	l.Info("checkout_success", "order_id", placed.ID, "total_price", placed.TotalPrice)
	return c.JSON(http.StatusOK, echo.Map{
		"order": placed,
		"cart":  cleared,
	})
}

func (h *OrderHTTP) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.list")

	q := order.ListQuery{
		Status:  c.QueryParam("status"),
		Keyword: c.QueryParam("keyword"),
		Page:    util.ParseIntDefault(c.QueryParam("page"), 0),
		Limit:   util.ParseIntDefault(c.QueryParam("limit"), util.DefaultPageSize),
	}

	orders, total, err := h.Repo.List(ctx, q)
	if err != nil {
		l.Error("list_orders_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list orders")
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": orders, "total": total})
}

func (h *OrderHTTP) SearchOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.search")

	if h.OrderIndex == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "order search is not configured")
	}

	q := c.QueryParam("q")
	status := c.QueryParam("status")
	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	from, size := util.Calculate(page, size)

	total, docs, err := h.OrderIndex.Search(ctx, q, status, from, size)
	if err != nil {
		l.Error("search_orders_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "order search failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "orders": docs})
}

func (h *OrderHTTP) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.get")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "order id is not a uuid")
	}

	o, err := h.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			l.Warn("get_order_failed", "status", 404, "order_id", id)
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		l.Error("get_order_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot get order")
	}
	return c.JSON(http.StatusOK, o)
}

func (h *OrderHTTP) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.update_status")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "order id is not a uuid")
	}

	var req struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if !req.Status.Valid() {
		l.Warn("update_status_failed", "status", 400, "target", req.Status)
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status")
	}

	o, err := h.Lifecycle.Transition(ctx, id, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrNotFound):
			l.Warn("update_status_failed", "status", 404, "order_id", id)
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		case errors.Is(err, order.ErrInvalidTransition):
			l.Warn("update_status_failed", "status", 400, "order_id", id, "target", req.Status, "error", err)
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			l.Error("update_status_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot update order status")
		}
	}

	l.Info("update_status_success", "order_id", id, "target", req.Status)
	return c.JSON(http.StatusOK, o)
}

func (h *OrderHTTP) MyOrders(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}

	orders, err := h.Repo.ListForUser(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("list_own_orders_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list orders")
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHTTP) MyOrder(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "order id is not a uuid")
	}

	o, err := h.Repo.GetForUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		logging.FromContext(ctx).Error("get_own_order_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot get order")
	}
	return c.JSON(http.StatusOK, o)
}
