// Package classroom is the read-only loader for persisted classrooms and
// their students. Sessions never write here; the classroom is loaded once
// at session creation and turned into the in-memory agent roster.
package classroom

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edusim/classsim/pkg/models"
)

// ErrNotFound is returned when a classroom id is unknown.
var ErrNotFound = errors.New("classroom not found")

// StudentRecord is one persisted student row.
type StudentRecord struct {
	ID          int64            `json:"id"`
	DisplayName string           `json:"displayName"`
	Kind        models.AgentKind `json:"kind"`
}

// Classroom is the persisted classroom aggregate.
type Classroom struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Subject    string          `json:"subject"`
	GradeLevel int             `json:"gradeLevel"`
	Students   []StudentRecord `json:"students"`
}

// Store loads classrooms by id.
type Store interface {
	GetClassroom(ctx context.Context, id string) (*Classroom, error)
}

// PGStore loads classrooms from PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PostgreSQL-backed store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// GetClassroom implements Store.
func (s *PGStore) GetClassroom(ctx context.Context, id string) (*Classroom, error) {
	var c Classroom
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, subject, grade_level FROM classrooms WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Subject, &c.GradeLevel)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query classroom %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, display_name, kind FROM students WHERE classroom_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query students of %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var st StudentRecord
		if err := rows.Scan(&st.ID, &st.DisplayName, &st.Kind); err != nil {
			return nil, fmt.Errorf("scan student row: %w", err)
		}
		c.Students = append(c.Students, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate student rows: %w", err)
	}
	return &c, nil
}

// StaticStore serves classrooms from memory. Used by tests and by dev mode
// without a database.
type StaticStore struct {
	classrooms map[string]*Classroom
}

// NewStaticStore creates a store over the given classrooms.
func NewStaticStore(classrooms ...*Classroom) *StaticStore {
	m := make(map[string]*Classroom, len(classrooms))
	for _, c := range classrooms {
		m[c.ID] = c
	}
	return &StaticStore{classrooms: m}
}

// GetClassroom implements Store.
func (s *StaticStore) GetClassroom(_ context.Context, id string) (*Classroom, error) {
	c, ok := s.classrooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

// DemoClassroom returns a small built-in classroom for dev mode.
func DemoClassroom() *Classroom {
	return &Classroom{
		ID:         "00000000-0000-0000-0000-000000000001",
		Name:       "Demo 4.B",
		Subject:    "Mathematics",
		GradeLevel: 4,
		Students: []StudentRecord{
			{ID: 1, DisplayName: "Anna", Kind: models.KindADHD},
			{ID: 2, DisplayName: "Ben", Kind: models.KindTypical},
			{ID: 3, DisplayName: "Csilla", Kind: models.KindAutistic},
			{ID: 4, DisplayName: "David", Kind: models.KindTypical},
		},
	}
}
