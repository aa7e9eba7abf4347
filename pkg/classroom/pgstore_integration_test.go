package classroom

import (
	"context"
	stdsql "database/sql"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/edusim/classsim/pkg/database"
	"github.com/edusim/classsim/pkg/models"
)

// startPostgres runs a disposable PostgreSQL container, applies the
// migrations, and returns a query pool.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))
	require.NoError(t, db.Close())

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPGStoreGetClassroomIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	pool := startPostgres(t)

	const classroomID = "11111111-1111-1111-1111-111111111111"
	_, err := pool.Exec(ctx,
		`INSERT INTO classrooms (id, name, subject, grade_level) VALUES ($1, $2, $3, $4)`,
		classroomID, "4.B", "Mathematics", 4)
	require.NoError(t, err)
	for _, st := range []struct {
		name string
		kind models.AgentKind
	}{
		{"Anna", models.KindADHD},
		{"Ben", models.KindTypical},
	} {
		_, err := pool.Exec(ctx,
			`INSERT INTO students (classroom_id, display_name, kind) VALUES ($1, $2, $3)`,
			classroomID, st.name, st.kind)
		require.NoError(t, err)
	}

	store := NewPGStore(pool)

	t.Run("loads classroom with students in id order", func(t *testing.T) {
		room, err := store.GetClassroom(ctx, classroomID)
		require.NoError(t, err)
		assert.Equal(t, "4.B", room.Name)
		assert.Equal(t, "Mathematics", room.Subject)
		assert.Equal(t, 4, room.GradeLevel)
		require.Len(t, room.Students, 2)
		assert.Equal(t, "Anna", room.Students[0].DisplayName)
		assert.Equal(t, models.KindADHD, room.Students[0].Kind)
		assert.Equal(t, "Ben", room.Students[1].DisplayName)
	})

	t.Run("unknown id returns ErrNotFound", func(t *testing.T) {
		_, err := store.GetClassroom(ctx, "22222222-2222-2222-2222-222222222222")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
