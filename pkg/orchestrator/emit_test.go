package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusim/classsim/pkg/classroom"
	"github.com/edusim/classsim/pkg/events"
	"github.com/edusim/classsim/pkg/graph"
	"github.com/edusim/classsim/pkg/llm"
	"github.com/edusim/classsim/pkg/memory"
	"github.com/edusim/classsim/pkg/models"
)

// recordingEmitter captures realtime pushes for assertions. Token emits come
// from worker goroutines, so every method takes the lock.
type recordingEmitter struct {
	mu            sync.Mutex
	agentTurns    []models.Turn
	graphs        []*graph.CommunicationGraph
	studentStates [][]*models.AgentProfile
	processed     []string
}

var _ events.Emitter = (*recordingEmitter)(nil)

func (r *recordingEmitter) EmitEvent(models.Channel, models.SessionEvent) {}

func (r *recordingEmitter) EmitAgentTurn(_ models.Channel, _ string, turn models.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agentTurns = append(r.agentTurns, turn)
}

func (r *recordingEmitter) EmitAgentToken(models.Channel, string, string, string, string) {}

func (r *recordingEmitter) EmitTurnProcessed(_ models.Channel, _ string, turnID string, _ models.SessionMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed = append(r.processed, turnID)
}

func (r *recordingEmitter) EmitGraphUpdated(_ models.Channel, _ string, g *graph.CommunicationGraph) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.graphs = append(r.graphs, g)
}

func (r *recordingEmitter) EmitStudentStates(_ models.Channel, _ string, students []*models.AgentProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.studentStates = append(r.studentStates, students)
}

func TestProcessTurnPushesGraphAndStudentStates(t *testing.T) {
	rec := &recordingEmitter{}
	svc := NewService(memory.NewStore(), classroom.NewStaticStore(classroom.DemoClassroom()), llm.NewMock(""), rec)
	id := createClassroomSession(t, svc, models.ChannelSupervised)

	result, err := svc.ProcessTurn(context.Background(), id, "Today we start with fractions.")
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	require.Len(t, rec.graphs, 1)
	assert.NotEmpty(t, rec.graphs[0].Edges)

	require.Len(t, rec.studentStates, 1)
	assert.Len(t, rec.studentStates[0], 4)
	for _, s := range rec.studentStates[0] {
		assert.True(t, s.IsStudent())
	}

	require.Len(t, rec.processed, 1)
	assert.Equal(t, result.TurnID, rec.processed[0])
	assert.NotEmpty(t, rec.agentTurns)
}
