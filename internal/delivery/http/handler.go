package http

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/idempotency"
	"github.com/libreria-tm/backend/internal/service"
)

// Handler serves the sale, catalog and report endpoints.
type Handler struct {
	sales   *service.SaleService
	catalog *service.CatalogService
	reports *service.ReportService
}

func NewHandler(sales *service.SaleService, catalog *service.CatalogService, reports *service.ReportService) *Handler {
	return &Handler{sales: sales, catalog: catalog, reports: reports}
}

// RegisterRoutes mounts every endpoint on g. staff guards mutating routes and
// the seller-only reads; self only authenticates, for identities without a
// profile yet.
func (h *Handler) RegisterRoutes(g *echo.Group, staff, self []echo.MiddlewareFunc) {
	g.POST("/sales", h.createSale, staff...)

	g.GET("/invoices", h.listInvoices)
	g.GET("/invoices/:id/document", h.invoiceDocument)

	g.GET("/customers", h.listCustomers)
	g.POST("/customers", h.createCustomer, staff...)
	g.GET("/customers/search/:term", h.searchCustomers)
	g.PUT("/customers/:id", h.updateCustomer, staff...)
	g.DELETE("/customers/:id", h.deleteCustomer, staff...)
	g.GET("/customers/:id/purchases", h.customerPurchases)

	g.GET("/products", h.listProducts, staff...)
	g.POST("/products", h.createProduct, staff...)
	g.GET("/products/total", h.countProducts)
	g.GET("/products/category/:category", h.productsByCategory, staff...)
	g.GET("/products/:id", h.getProduct)
	g.PUT("/products/:id", h.updateProduct, staff...)
	g.DELETE("/products/:id", h.deleteProduct, staff...)

	g.GET("/suppliers", h.listSuppliers)
	g.POST("/suppliers", h.createSupplier, staff...)
	g.GET("/suppliers/search/:name", h.searchSuppliers)
	g.PUT("/suppliers/:id", h.updateSupplier, staff...)
	g.DELETE("/suppliers/:id", h.deleteSupplier, staff...)

	g.GET("/sellers", h.listSellers)
	g.POST("/sellers", h.registerSeller, self...)
	g.GET("/sellers/me", h.me, staff...)
	g.GET("/sellers/:id/sales", h.sellerSales, staff...)

	g.GET("/dashboard/today", h.dashboardToday)
	g.GET("/dashboard/last7days", h.dashboardLastDays)
	g.GET("/dashboard/month", h.dashboardMonth)
	g.GET("/dashboard/compare", h.dashboardCompare)
}

// --- Sales ---

func (h *Handler) createSale(c echo.Context) error {
	var req entity.SaleRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse sale request", err)
	}
	key, err := idempotency.Key(c.Request())
	if err != nil {
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	}
	req.IdempotencyKey = key
	if seller := currentSeller(c); seller != nil {
		if req.SellerID != 0 && req.SellerID != seller.ID {
			return fail(c, http.StatusForbidden, "FORBIDDEN", "Sales can only be recorded for the authenticated seller", nil)
		}
		req.SellerID = seller.ID
	}

	res, err := h.sales.ExecuteSale(c.Request().Context(), req)
	if err != nil {
		return serviceError(c, err)
	}
	if res.Replayed {
		return ok(c, res)
	}
	return created(c, res)
}

// --- Invoices ---

func (h *Handler) listInvoices(c echo.Context) error {
	if strings.EqualFold(c.QueryParam("format"), "csv") {
		var buf bytes.Buffer
		if err := h.reports.ExportInvoicesCSV(c.Request().Context(), &buf); err != nil {
			return serviceError(c, err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="facturas.csv"`)
		return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	}
	list, err := h.reports.ListInvoices(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, list)
}

func (h *Handler) invoiceDocument(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid invoice ID", nil)
	}
	doc, err := h.reports.InvoiceDocument(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, doc)
}

// --- Customers ---

func (h *Handler) listCustomers(c echo.Context) error {
	list, err := h.catalog.ListCustomers(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, list)
}

func (h *Handler) searchCustomers(c echo.Context) error {
	list, err := h.catalog.SearchCustomers(c.Request().Context(), c.Param("term"))
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, list)
}

func (h *Handler) createCustomer(c echo.Context) error {
	var v entity.Customer
	if err := c.Bind(&v); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse customer", err)
	}
	if err := h.catalog.CreateCustomer(c.Request().Context(), &v); err != nil {
		return serviceError(c, err)
	}
	return created(c, v)
}

func (h *Handler) updateCustomer(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	var v entity.Customer
	if err := c.Bind(&v); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse customer", err)
	}
	if err := h.catalog.UpdateCustomer(c.Request().Context(), id, &v); err != nil {
		return serviceError(c, err)
	}
	return ok(c, v)
}

func (h *Handler) deleteCustomer(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	if err := h.catalog.DeleteCustomer(c.Request().Context(), id); err != nil {
		return serviceError(c, err)
	}
	return ok(c, map[string]int64{"id": id})
}

func (h *Handler) customerPurchases(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	out, err := h.catalog.CustomerPurchases(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, out)
}

// --- Products ---

func (h *Handler) listProducts(c echo.Context) error {
	list, err := h.catalog.ListProducts(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, list)
}

func (h *Handler) countProducts(c echo.Context) error {
	n, err := h.catalog.CountProducts(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, map[string]int{"total": n})
}

func (h *Handler) productsByCategory(c echo.Context) error {
	list, err := h.catalog.ProductsByCategory(c.Request().Context(), c.Param("category"))
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, list)
}

func (h *Handler) getProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	p, err := h.catalog.GetProduct(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, p)
}

func (h *Handler) createProduct(c echo.Context) error {
	var p entity.Product
	if err := c.Bind(&p); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err)
	}
	if err := h.catalog.CreateProduct(c.Request().Context(), &p); err != nil {
		return serviceError(c, err)
	}
	return created(c, p)
}

func (h *Handler) updateProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	var p entity.Product
	if err := c.Bind(&p); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err)
	}
	if err := h.catalog.UpdateProduct(c.Request().Context(), id, &p); err != nil {
		return serviceError(c, err)
	}
	return ok(c, p)
}

func (h *Handler) deleteProduct(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid product ID", nil)
	}
	if err := h.catalog.DeleteProduct(c.Request().Context(), id); err != nil {
		return serviceError(c, err)
	}
	return ok(c, map[string]int64{"id": id})
}

// --- Suppliers ---

func (h *Handler) listSuppliers(c echo.Context) error {
	list, err := h.catalog.ListSuppliers(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, list)
}

func (h *Handler) searchSuppliers(c echo.Context) error {
	list, err := h.catalog.SearchSuppliers(c.Request().Context(), c.Param("name"))
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, list)
}

func (h *Handler) createSupplier(c echo.Context) error {
	var v entity.Supplier
	if err := c.Bind(&v); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse supplier", err)
	}
	if err := h.catalog.CreateSupplier(c.Request().Context(), &v); err != nil {
		return serviceError(c, err)
	}
	return created(c, v)
}

func (h *Handler) updateSupplier(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid supplier ID", nil)
	}
	var v entity.Supplier
	if err := c.Bind(&v); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse supplier", err)
	}
	if err := h.catalog.UpdateSupplier(c.Request().Context(), id, &v); err != nil {
		return serviceError(c, err)
	}
	return ok(c, v)
}

func (h *Handler) deleteSupplier(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid supplier ID", nil)
	}
	if err := h.catalog.DeleteSupplier(c.Request().Context(), id); err != nil {
		return serviceError(c, err)
	}
	return ok(c, map[string]int64{"id": id})
}

// --- Sellers ---

func (h *Handler) listSellers(c echo.Context) error {
	list, err := h.catalog.ListSellers(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, list)
}

// registerSeller stores the profile of the authenticated identity. Without
// authentication the auth id is taken from the body.
func (h *Handler) registerSeller(c echo.Context) error {
	var v entity.Seller
	if err := c.Bind(&v); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse seller", err)
	}
	if sub := subject(c); sub != "" {
		v.AuthID = sub
	}
	if err := h.catalog.RegisterSeller(c.Request().Context(), &v); err != nil {
		return serviceError(c, err)
	}
	return created(c, v)
}

func (h *Handler) me(c echo.Context) error {
	seller := currentSeller(c)
	if seller == nil {
		return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
	}
	return ok(c, seller)
}

func (h *Handler) sellerSales(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid seller ID", nil)
	}
	out, err := h.catalog.SellerSales(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, out)
}

// --- Dashboard ---

func (h *Handler) dashboardToday(c echo.Context) error {
	out, err := h.reports.Today(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, out)
}

func (h *Handler) dashboardLastDays(c echo.Context) error {
	out, err := h.reports.LastDays(c.Request().Context(), 7)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, out)
}

func (h *Handler) dashboardMonth(c echo.Context) error {
	out, err := h.reports.CurrentMonth(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, out)
}

func (h *Handler) dashboardCompare(c echo.Context) error {
	out, err := h.reports.TodayVsYesterday(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, out)
}
