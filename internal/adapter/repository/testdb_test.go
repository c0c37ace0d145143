package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugohenrick/erp-veterinaria/internal/infrastructure/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const migrationsDir = "../../../migrations"

// newTestPool sobe um PostgreSQL descartável com as migrações aplicadas
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("teste de integração ignorado em modo -short")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("erp_vet_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "falha ao iniciar container PostgreSQL")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("falha ao encerrar container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, database.RunMigrations(dsn, migrationsDir))

	pool, err := database.NewPostgresPool(ctx, database.PostgresConfig{URL: dsn, MaxConnections: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

// seedInvoice grava cliente, fatura e dois itens e devolve o ID da fatura
func seedInvoice(t *testing.T, pool *pgxpool.Pool, tenantID, number string) string {
	t.Helper()
	ctx := context.Background()

	clientID := uuid.New().String()
	_, err := pool.Exec(ctx, `
		INSERT INTO clients (id, tenant_id, name, document, email, street, number, district, city, city_code, state, zip_code)
		VALUES ($1, $2, 'Maria Tutora', '12345678909', 'maria@example.com', 'Rua das Flores', '10', 'Centro', 'São Paulo', '3550308', 'SP', '01001000')
	`, clientID, tenantID)
	require.NoError(t, err)

	invoiceID := uuid.New().String()
	_, err = pool.Exec(ctx, `
		INSERT INTO invoices (id, tenant_id, client_id, number, status, discount, total, payment_method)
		VALUES ($1, $2, $3, $4, 'paid', 10.00, 311.00, 'pix')
	`, invoiceID, tenantID, clientID, number)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		INSERT INTO invoice_items (id, invoice_id, position, code, description, ncm, cfop, unit, quantity, unit_price, discount)
		VALUES
			($1, $3, 1, 'CONS', 'Consulta veterinária', '00000000', '5933', 'UN', 1, 150.00, 0),
			($2, $3, 2, 'VAC', 'Vacina V10', '30023000', '5102', 'UN', 2, 85.50, 0)
	`, uuid.New().String(), uuid.New().String(), invoiceID)
	require.NoError(t, err)

	return invoiceID
}
