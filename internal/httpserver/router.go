package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/mstoica/storefront/internal/middleware/auth"
)

type Deps struct {
	CartHandler  *CartHTTP
	OrderHandler *OrderHTTP
	JWTSecret    []byte
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	login := auth.RequireLogin(d.JWTSecret)
	admin := auth.AdminOnly(d.JWTSecret)

	userCart := e.Group("/user/cart", login)
	userCart.GET("", d.CartHandler.GetCart)
	userCart.POST("/:productId", d.CartHandler.AddToCart)
	userCart.PUT("/quantity/:productId", d.CartHandler.SetQuantity)
	userCart.DELETE("/:productId", d.CartHandler.RemoveFromCart)

	userOrders := e.Group("/user/orders", login)
	userOrders.GET("", d.OrderHandler.MyOrders)
	userOrders.GET("/:id", d.OrderHandler.MyOrder)

	e.POST("/order", d.OrderHandler.Checkout, login)

	orders := e.Group("/order", admin)
	orders.GET("", d.OrderHandler.ListOrders)
	orders.GET("/search", d.OrderHandler.SearchOrders)
	orders.GET("/:id", d.OrderHandler.GetOrder)
	orders.PUT("/:id/status", d.OrderHandler.UpdateStatus)
}
