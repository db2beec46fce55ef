package service

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/repository"
)

// CatalogService manages customers, suppliers, products and seller profiles.
type CatalogService struct {
	repos repository.Repositories
}

func NewCatalogService(repos repository.Repositories) *CatalogService {
	return &CatalogService{repos: repos}
}

// --- Customers ---

func (s *CatalogService) ListCustomers(ctx context.Context) ([]entity.Customer, error) {
	out, err := s.repos.Customers.FindAll(ctx)
	return out, pkgerrors.Wrap(err, "list customers")
}

// SearchCustomers matches term against first or last name.
func (s *CatalogService) SearchCustomers(ctx context.Context, term string) ([]entity.Customer, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, &ValidationError{Field: "term", Message: "search term is required"}
	}
	out, err := s.repos.Customers.Search(ctx, term)
	return out, pkgerrors.Wrap(err, "search customers")
}

func (s *CatalogService) CreateCustomer(ctx context.Context, c *entity.Customer) error {
	if err := validateCustomer(c); err != nil {
		return err
	}
	if err := s.repos.Customers.Create(ctx, c); err != nil {
		return pkgerrors.Wrap(err, "create customer")
	}
	zap.L().Info("customer created", zap.Int64("customer_id", c.ID))
	return nil
}

func (s *CatalogService) UpdateCustomer(ctx context.Context, id int64, c *entity.Customer) error {
	if err := validateCustomer(c); err != nil {
		return err
	}
	c.ID = id
	return storeError("customer", id, s.repos.Customers.Update(ctx, c))
}

func (s *CatalogService) DeleteCustomer(ctx context.Context, id int64) error {
	return storeError("customer", id, s.repos.Customers.Delete(ctx, id))
}

// CustomerPurchases returns the customer's invoices, newest first.
func (s *CatalogService) CustomerPurchases(ctx context.Context, id int64) (*entity.CustomerPurchases, error) {
	c, err := s.repos.Customers.FindByID(ctx, id)
	if err != nil {
		return nil, storeError("customer", id, err)
	}
	recs, err := s.repos.Invoices.FindRecords(ctx, repository.InvoiceFilter{CustomerID: id})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load purchases")
	}
	out := &entity.CustomerPurchases{
		Customer:  entity.PartyRef{ID: c.ID, Name: c.FullName()},
		Purchases: make([]entity.InvoiceDocument, 0, len(recs)),
	}
	for _, r := range recs {
		out.Purchases = append(out.Purchases, documentOf(r))
	}
	return out, nil
}

func validateCustomer(c *entity.Customer) error {
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	if c.FirstName == "" {
		return &ValidationError{Field: "first_name", Message: "is required"}
	}
	if c.LastName == "" {
		return &ValidationError{Field: "last_name", Message: "is required"}
	}
	return nil
}

// --- Suppliers ---

func (s *CatalogService) ListSuppliers(ctx context.Context) ([]entity.Supplier, error) {
	out, err := s.repos.Suppliers.FindAll(ctx)
	return out, pkgerrors.Wrap(err, "list suppliers")
}

// SearchSuppliers matches name against the contact name.
func (s *CatalogService) SearchSuppliers(ctx context.Context, name string) ([]entity.Supplier, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "search term is required"}
	}
	out, err := s.repos.Suppliers.SearchByContact(ctx, name)
	return out, pkgerrors.Wrap(err, "search suppliers")
}

func (s *CatalogService) CreateSupplier(ctx context.Context, v *entity.Supplier) error {
	if err := validateSupplier(v); err != nil {
		return err
	}
	return pkgerrors.Wrap(s.repos.Suppliers.Create(ctx, v), "create supplier")
}

func (s *CatalogService) UpdateSupplier(ctx context.Context, id int64, v *entity.Supplier) error {
	if err := validateSupplier(v); err != nil {
		return err
	}
	v.ID = id
	return storeError("supplier", id, s.repos.Suppliers.Update(ctx, v))
}

func (s *CatalogService) DeleteSupplier(ctx context.Context, id int64) error {
	return storeError("supplier", id, s.repos.Suppliers.Delete(ctx, id))
}

func validateSupplier(v *entity.Supplier) error {
	v.Company = strings.TrimSpace(v.Company)
	if v.Company == "" {
		return &ValidationError{Field: "company", Message: "is required"}
	}
	return nil
}

// --- Products ---

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*entity.Product, error) {
	p, err := s.repos.Products.FindByID(ctx, id)
	if err != nil {
		return nil, storeError("product", id, err)
	}
	return p, nil
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]entity.Product, error) {
	out, err := s.repos.Products.FindAll(ctx)
	return out, pkgerrors.Wrap(err, "list products")
}

func (s *CatalogService) ProductsByCategory(ctx context.Context, category string) ([]entity.Product, error) {
	out, err := s.repos.Products.FindByCategory(ctx, strings.TrimSpace(category))
	return out, pkgerrors.Wrap(err, "list products by category")
}

func (s *CatalogService) CountProducts(ctx context.Context) (int, error) {
	n, err := s.repos.Products.Count(ctx)
	return n, pkgerrors.Wrap(err, "count products")
}

func (s *CatalogService) CreateProduct(ctx context.Context, p *entity.Product) error {
	if err := s.validateProduct(ctx, p); err != nil {
		return err
	}
	if err := s.repos.Products.Create(ctx, p); err != nil {
		return pkgerrors.Wrap(err, "create product")
	}
	zap.L().Info("product created", zap.Int64("product_id", p.ID), zap.Int("stock", p.Stock))
	return nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, p *entity.Product) error {
	if err := s.validateProduct(ctx, p); err != nil {
		return err
	}
	p.ID = id
	return storeError("product", id, s.repos.Products.Update(ctx, p))
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	return storeError("product", id, s.repos.Products.Delete(ctx, id))
}

func (s *CatalogService) validateProduct(ctx context.Context, p *entity.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	switch {
	case p.Name == "":
		return &ValidationError{Field: "name", Message: "is required"}
	case p.SellPrice.IsNegative():
		return &ValidationError{Field: "sell_price", Message: "must not be negative"}
	case p.CostPrice.IsNegative():
		return &ValidationError{Field: "cost_price", Message: "must not be negative"}
	case p.Stock < 0:
		return &ValidationError{Field: "stock", Message: "must not be negative"}
	}
	if p.SupplierID != nil {
		if _, err := s.repos.Suppliers.FindByID(ctx, *p.SupplierID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &ValidationError{Field: "supplier_id", Message: "unknown supplier"}
			}
			return pkgerrors.Wrap(err, "check supplier")
		}
	}
	return nil
}

// --- Sellers ---

// SellerByAuthID resolves the identity-provider subject to a seller profile.
func (s *CatalogService) SellerByAuthID(ctx context.Context, authID string) (*entity.Seller, error) {
	v, err := s.repos.Sellers.FindByAuthID(ctx, authID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Entity: "seller", ID: authID}
	}
	return v, pkgerrors.Wrap(err, "find seller")
}

func (s *CatalogService) ListSellers(ctx context.Context) ([]entity.Seller, error) {
	out, err := s.repos.Sellers.FindAll(ctx)
	return out, pkgerrors.Wrap(err, "list sellers")
}

// RegisterSeller stores the profile row for an identity already created by
// the identity provider.
func (s *CatalogService) RegisterSeller(ctx context.Context, v *entity.Seller) error {
	v.FirstName = strings.TrimSpace(v.FirstName)
	v.Email = strings.TrimSpace(v.Email)
	if v.FirstName == "" {
		return &ValidationError{Field: "first_name", Message: "is required"}
	}
	if v.Email == "" {
		return &ValidationError{Field: "email", Message: "is required"}
	}
	err := s.repos.Sellers.Create(ctx, v)
	if errors.Is(err, repository.ErrDuplicateKey) {
		return &ValidationError{Field: "email", Message: "a seller with this email or auth id already exists"}
	}
	return pkgerrors.Wrap(err, "register seller")
}

// SellerSales lists the invoices recorded by a seller, newest first.
func (s *CatalogService) SellerSales(ctx context.Context, id int64) (*entity.SellerSales, error) {
	v, err := s.repos.Sellers.FindByID(ctx, id)
	if err != nil {
		return nil, storeError("seller", id, err)
	}
	recs, err := s.repos.Invoices.FindRecords(ctx, repository.InvoiceFilter{SellerID: id})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load seller sales")
	}
	out := &entity.SellerSales{
		Seller: entity.PartyRef{ID: v.ID, Name: v.FullName()},
		Total:  len(recs),
		Sales:  make([]entity.InvoiceSummary, 0, len(recs)),
	}
	for _, r := range recs {
		out.Sales = append(out.Sales, summaryOf(r))
	}
	return out, nil
}

// storeError maps repository sentinels to service errors.
func storeError(entityName string, id int64, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return &NotFoundError{Entity: entityName, ID: id}
	case errors.Is(err, repository.ErrInUse):
		return &InUseError{Entity: entityName, ID: id}
	default:
		return pkgerrors.Wrapf(err, "%s %d", entityName, id)
	}
}
