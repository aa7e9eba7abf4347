package classroom

import (
	"context"
	stdsql "database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/edusim/classsim/pkg/database"
	"github.com/edusim/classsim/pkg/models"
)

// setupTestPool returns a migrated database connection.
// In CI (CI_DATABASE_URL set) it connects to the external service container;
// locally it spins up a PostgreSQL testcontainer.
func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
		if testing.Short() {
			t.Skip("skipping container-backed test in -short mode")
		}
		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("classsim_test"),
			tcpostgres.WithUsername("classsim"),
			tcpostgres.WithPassword("classsim"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			t.Skipf("could not start postgres container: %v", err)
		}
		t.Cleanup(func() { _ = container.Terminate(context.Background()) })

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))
	t.Cleanup(func() { _ = db.Close() })

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPGStoreGetClassroom(t *testing.T) {
	pool := setupTestPool(t)
	ctx := context.Background()
	store := NewPGStore(pool)

	classroomID := uuid.New().String()
	_, err := pool.Exec(ctx,
		`INSERT INTO classrooms (id, name, subject, grade_level) VALUES ($1, $2, $3, $4)`,
		classroomID, "4.B", "Mathematics", 4)
	require.NoError(t, err)
	for _, s := range []struct {
		name string
		kind string
	}{{"Anna", "ADHD"}, {"Ben", "Typical"}, {"Csilla", "Autistic"}} {
		_, err := pool.Exec(ctx,
			`INSERT INTO students (classroom_id, display_name, kind) VALUES ($1, $2, $3)`,
			classroomID, s.name, s.kind)
		require.NoError(t, err)
	}

	t.Run("loads classroom with students in insertion order", func(t *testing.T) {
		c, err := store.GetClassroom(ctx, classroomID)
		require.NoError(t, err)
		assert.Equal(t, "4.B", c.Name)
		require.Len(t, c.Students, 3)
		assert.Equal(t, "Anna", c.Students[0].DisplayName)
		assert.Equal(t, models.KindADHD, c.Students[0].Kind)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.GetClassroom(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStaticStore(t *testing.T) {
	store := NewStaticStore(DemoClassroom())

	c, err := store.GetClassroom(context.Background(), DemoClassroom().ID)
	require.NoError(t, err)
	assert.Len(t, c.Students, 4)

	_, err = store.GetClassroom(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
