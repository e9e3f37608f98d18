package mcpserver

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bento/internal/board"
	"bento/internal/domain"
	"bento/internal/layout"
	"bento/internal/service"
	"bento/internal/storage"
)

func newTestServer(t *testing.T, requireApproval bool) (*Server, *service.BentoService, *service.MockEmitter) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	em := &service.MockEmitter{}
	svc := service.NewBentoService(board.New(4), layout.NewResolver(1024), nil, nil, em, nil)
	t.Cleanup(func() {
		cancel()
		svc.Close(context.Background())
	})
	s := New(ctx, Deps{
		Service:         svc,
		Emitter:         em,
		RequireApproval: requireApproval,
		ApprovalTimeout: 2 * time.Second,
	})
	return s, svc, em
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestAddAndListCells(t *testing.T) {
	s, _, _ := newTestServer(t, false)
	ctx := context.Background()

	_, err := s.handleAddTextCell(ctx, call("add_text_cell", map[string]any{"text": "Hello"}))
	require.NoError(t, err)
	_, err = s.handleAddImageCell(ctx, call("add_image_cell", map[string]any{"url": "https://x/y.png"}))
	require.NoError(t, err)

	res, err := s.handleListCells(ctx, call("list_cells", map[string]any{"type": "text"}))
	require.NoError(t, err)

	var cells []cellSummary
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &cells))
	require.Len(t, cells, 1)
	assert.Equal(t, "Hello", cells[0].Preview)
	assert.Equal(t, 1, cells[0].W)
	assert.Equal(t, 2, cells[0].H)
}

func TestToolArgumentErrors(t *testing.T) {
	s, svc, _ := newTestServer(t, false)
	ctx := context.Background()

	_, err := s.handleAddTextCell(ctx, call("add_text_cell", map[string]any{}))
	assert.Error(t, err)

	_, err = s.handleAddLinkCell(ctx, call("add_link_cell", map[string]any{"url": "ftp://nope"}))
	assert.ErrorIs(t, err, service.ErrInvalidURL)

	item, _ := svc.AddTextCell(ctx, "a")
	_, err = s.handleApplyPreset(ctx, call("apply_preset", map[string]any{"cellId": item.ID, "preset": "huge"}))
	assert.ErrorIs(t, err, layout.ErrUnknownPreset)

	_, err = s.handleMoveCell(ctx, call("move_cell", map[string]any{"cellId": item.ID, "x": 1.0}))
	assert.Error(t, err, "y missing")
}

func TestApplyPresetTool(t *testing.T) {
	s, svc, _ := newTestServer(t, false)
	ctx := context.Background()
	item, _ := svc.AddTextCell(ctx, "a")

	_, err := s.handleApplyPreset(ctx, call("apply_preset", map[string]any{"cellId": item.ID, "preset": "rect-horizontal"}))
	require.NoError(t, err)

	got, _ := svc.Store().Item(item.ID)
	want, _ := layout.ResolvePreset(domain.BreakpointSM, domain.PresetRectHorizontal)
	assert.Equal(t, want.W, got.W)
	assert.Equal(t, want.H, got.H)
}

func TestDeleteCell_NoApproval(t *testing.T) {
	s, svc, _ := newTestServer(t, false)
	ctx := context.Background()
	item, _ := svc.AddTextCell(ctx, "a")

	res, err := s.handleDeleteCell(ctx, call("delete_cell", map[string]any{"cellId": item.ID}))
	require.NoError(t, err)
	assert.Contains(t, textOf(t, res), "deleted")
	assert.Empty(t, svc.Items())

	res, err = s.handleDeleteCell(ctx, call("delete_cell", map[string]any{"cellId": item.ID}))
	require.NoError(t, err)
	assert.Contains(t, textOf(t, res), "does not exist")
}

// answerApproval waits for the approval event and resolves it.
func answerApproval(t *testing.T, s *Server, em *service.MockEmitter, approve bool) {
	t.Helper()
	go func() {
		var id string
		assert.Eventually(t, func() bool {
			for _, e := range em.Named(EventApprovalRequired) {
				id = e.(PendingAction).ID
				return true
			}
			return false
		}, time.Second, 5*time.Millisecond)
		if approve {
			s.Approve(id)
		} else {
			s.Reject(id)
		}
	}()
}

func TestDeleteCell_Approved(t *testing.T) {
	s, svc, em := newTestServer(t, true)
	ctx := context.Background()
	item, _ := svc.AddTextCell(ctx, "a")

	answerApproval(t, s, em, true)
	res, err := s.handleDeleteCell(ctx, call("delete_cell", map[string]any{"cellId": item.ID}))
	require.NoError(t, err)
	assert.Contains(t, textOf(t, res), "deleted")
	assert.Empty(t, svc.Items())

	pending := em.Named(EventApprovalRequired)[0].(PendingAction)
	assert.Equal(t, "delete_cell", pending.Tool)
	assert.JSONEq(t, `{"cellIds":["`+item.ID+`"]}`, pending.Metadata)
}

func TestResetBoard_Rejected(t *testing.T) {
	s, svc, em := newTestServer(t, true)
	ctx := context.Background()
	item, _ := svc.AddTextCell(ctx, "keep me")

	answerApproval(t, s, em, false)
	res, err := s.handleResetBoard(ctx, call("reset_board", nil))
	require.NoError(t, err)
	assert.Equal(t, "Action rejected by user", textOf(t, res))

	_, ok := svc.Content(item.ID)
	assert.True(t, ok)
}

func TestApprovalQueue_Timeout(t *testing.T) {
	em := &service.MockEmitter{}
	q := NewApprovalQueue(context.Background(), em, 20*time.Millisecond)

	ok, err := q.Request(context.Background(), "delete_cell", "Delete", "")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrApprovalTimeout)
	assert.Len(t, em.Named(EventApprovalDismissed), 1)
	assert.Empty(t, q.Pending())
}

func TestApprovalQueue_CallerCancel(t *testing.T) {
	q := NewApprovalQueue(context.Background(), &service.MockEmitter{}, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := q.Request(ctx, "reset_board", "Reset", "")
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetViewportWidth(t *testing.T) {
	s, svc, _ := newTestServer(t, false)
	ctx := context.Background()
	item, _ := svc.AddTextCell(ctx, "a")
	_, _ = svc.MoveCell(ctx, item.ID, 3, 0)

	res, err := s.handleSetViewportWidth(ctx, call("set_viewport_width", map[string]any{"width": 400.0}))
	require.NoError(t, err)

	var bp domain.BreakpointState
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &bp))
	assert.Equal(t, domain.BreakpointXXS, bp.Name)
	got, _ := svc.Store().Item(item.ID)
	assert.Equal(t, 1, got.X, "clamped into two columns")
}

func TestBoardResource(t *testing.T) {
	s, svc, _ := newTestServer(t, false)
	ctx := context.Background()
	item, _ := svc.AddTextCell(ctx, "a")

	contents, err := s.handleBoardResource(ctx, mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text := contents[0].(mcp.TextResourceContents).Text

	var state service.GridState
	require.NoError(t, json.Unmarshal([]byte(text), &state))
	require.Len(t, state.Layout, 1)
	assert.Equal(t, item.ID, state.Layout[0].ID)
	assert.Equal(t, domain.TextContent{Text: "a"}, state.Entries[0].Content)

	req := mcp.ReadResourceRequest{}
	req.Params.URI = cellURIPrefix + item.ID
	contents, err = s.handleCellResource(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, contents[0].(mcp.TextResourceContents).Text, `"preview": "a"`)

	req.Params.URI = cellURIPrefix + "missing"
	_, err = s.handleCellResource(ctx, req)
	assert.Error(t, err)
}

// memBackend resolves approvals as soon as they are inserted.
type memBackend struct {
	mu      sync.Mutex
	answer  string
	rows    map[string]storage.Approval
	deleted []string
}

func (m *memBackend) Insert(_ context.Context, ap storage.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ap.Status = m.answer
	m.rows[ap.ID] = ap
	return nil
}

func (m *memBackend) Status(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ap, ok := m.rows[id]
	if !ok {
		return "", storage.ErrNotFound
	}
	return ap.Status, nil
}

func (m *memBackend) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func TestApprovalQueue_Backend(t *testing.T) {
	for _, tc := range []struct {
		answer  string
		want    bool
		wantErr error
	}{
		{storage.ApprovalApproved, true, nil},
		{storage.ApprovalRejected, false, ErrRejected},
		{storage.ApprovalPending, false, ErrApprovalTimeout},
	} {
		t.Run(tc.answer, func(t *testing.T) {
			b := &memBackend{answer: tc.answer, rows: map[string]storage.Approval{}}
			q := NewApprovalQueue(context.Background(), nil, 100*time.Millisecond)
			q.SetBackend(b)
			q.pollInterval = 5 * time.Millisecond

			ok, err := q.Request(context.Background(), "delete_cell", "Delete", `{"cellIds":["a"]}`)
			assert.Equal(t, tc.want, ok)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Empty(t, b.rows)
			assert.Len(t, b.deleted, 1)
		})
	}
}
