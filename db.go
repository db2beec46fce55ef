package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/libreria-tm/backend/internal/config"
	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/repository"
	"github.com/libreria-tm/backend/internal/repository/memory"
	"github.com/libreria-tm/backend/internal/repository/postgres"
)

// storage bundles the repositories with their liveness check and cleanup.
type storage struct {
	repos  repository.Repositories
	health func(ctx context.Context) error
	close  func() error
}

func openStorage(ctx context.Context, cfg config.DBConfig) (*storage, error) {
	var st *storage
	switch cfg.Driver {
	case "memory":
		zap.L().Warn("using in-memory storage, data is lost on restart")
		st = &storage{
			repos:  memory.NewStore().Repositories(),
			health: func(context.Context) error { return nil },
			close:  func() error { return nil },
		}
	default:
		db, err := postgres.InitDB(ctx, cfg.DSN, postgres.PoolConfig{
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxIdleConns,
			ConnMaxLife:  cfg.ConnMaxLife,
		})
		if err != nil {
			return nil, err
		}
		st = &storage{
			repos:  postgres.NewRepositories(db),
			health: db.PingContext,
			close:  db.Close,
		}
	}

	if cfg.Seed {
		if err := seedCatalog(ctx, st.repos); err != nil {
			st.close()
			return nil, err
		}
	}
	return st, nil
}

// seedCatalog loads a demo catalog into an empty store.
func seedCatalog(ctx context.Context, repos repository.Repositories) error {
	count, err := repos.Products.Count(ctx)
	if err != nil {
		return errors.Wrap(err, "count products")
	}
	if count > 0 {
		return nil
	}

	supplier := entity.Supplier{Company: "Distribuidora Andina", Phone: "2-2441122", ContactName: "Marco Choque"}
	if err := repos.Suppliers.Create(ctx, &supplier); err != nil {
		return errors.Wrap(err, "seed supplier")
	}

	products := []entity.Product{
		{Name: "Cuaderno universitario 100 hojas", Category: "Papelería", CostPrice: decimal.RequireFromString("8.50"), SellPrice: decimal.RequireFromString("12.00"), Stock: 120},
		{Name: "Bolígrafo azul", Category: "Escritura", CostPrice: decimal.RequireFromString("1.20"), SellPrice: decimal.RequireFromString("2.50"), Stock: 500},
		{Name: "Lápiz HB", Category: "Escritura", CostPrice: decimal.RequireFromString("0.80"), SellPrice: decimal.RequireFromString("1.50"), Stock: 400},
		{Name: "Cien años de soledad", Category: "Libros", CostPrice: decimal.RequireFromString("60.00"), SellPrice: decimal.RequireFromString("95.00"), Stock: 12},
		{Name: "Diccionario escolar", Category: "Libros", CostPrice: decimal.RequireFromString("35.00"), SellPrice: decimal.RequireFromString("55.00"), Stock: 20},
		{Name: "Caja de colores 24 unidades", Category: "Arte", CostPrice: decimal.RequireFromString("18.00"), SellPrice: decimal.RequireFromString("28.00"), Stock: 40},
	}
	for i := range products {
		products[i].SupplierID = &supplier.ID
		if err := repos.Products.Create(ctx, &products[i]); err != nil {
			return errors.Wrapf(err, "seed product %s", products[i].Name)
		}
	}

	customer := entity.Customer{FirstName: "Cliente", LastName: "General", CI: "0"}
	if err := repos.Customers.Create(ctx, &customer); err != nil {
		return errors.Wrap(err, "seed customer")
	}
	seller := entity.Seller{AuthID: "demo-seller", Code: "V-001", FirstName: "Vendedor", LastName: "Demo", Email: "ventas@libreria-tm.bo"}
	if err := repos.Sellers.Create(ctx, &seller); err != nil && !errors.Is(err, repository.ErrDuplicateKey) {
		return errors.Wrap(err, "seed seller")
	}

	zap.L().Info("seeded catalog", zap.Int("products", len(products)))
	return nil
}
