package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
	"github.com/platinummonkey/rowguard/pkg/auth"
	"github.com/platinummonkey/rowguard/pkg/batch"
	"github.com/platinummonkey/rowguard/pkg/observability"
	"github.com/platinummonkey/rowguard/pkg/orgs"
	"github.com/platinummonkey/rowguard/pkg/rbac"
	"github.com/platinummonkey/rowguard/pkg/records"
)

const (
	testToken  = "rg_valid"
	testUserID = "11111111-1111-1111-1111-111111111111"
	testOrgID  = "22222222-2222-2222-2222-222222222222"
)

func testSession() *auth.Session {
	return &auth.Session{
		ID:                   "33333333-3333-3333-3333-333333333333",
		UserID:               testUserID,
		ActiveOrganizationID: testOrgID,
		ExpiresAt:            time.Now().Add(time.Hour),
	}
}

// mockSessions is a mock implementation of Sessions for testing
type mockSessions struct {
	setActiveFunc func(sess *auth.Session, orgID string) (*auth.Session, error)
	revoked       bool
}

func (m *mockSessions) Lookup(_ context.Context, token string) (*auth.Session, error) {
	if token != testToken {
		return nil, apperrors.Unauthenticated("Invalid session token")
	}
	return testSession(), nil
}

func (m *mockSessions) SetActiveOrganization(_ context.Context, sess *auth.Session, orgID string) (*auth.Session, error) {
	if m.setActiveFunc != nil {
		return m.setActiveFunc(sess, orgID)
	}
	cp := *sess
	cp.ActiveOrganizationID = orgID
	return &cp, nil
}

func (m *mockSessions) Revoke(_ context.Context, _ *auth.Session) error {
	m.revoked = true
	return nil
}

type mockTokens struct {
	consumeFunc func(kind auth.TokenKind, token string) (*auth.OneTimeToken, error)
}

func (m *mockTokens) Consume(_ context.Context, kind auth.TokenKind, token string) (*auth.OneTimeToken, error) {
	return m.consumeFunc(kind, token)
}

type mockUsers struct{}

func (mockUsers) Find(_ context.Context, id string) (*auth.User, error) {
	if id != testUserID {
		return nil, apperrors.NotFound("User not found")
	}
	return &auth.User{ID: testUserID, Email: "ada@example.com", Name: "Ada", Role: rbac.RoleMember}, nil
}

// mockOrgs is a mock implementation of Organizations for testing. Unset
// funcs panic so that tests only exercise what they configure.
type mockOrgs struct {
	createFunc      func(creatorID string, req orgs.CreateOrgRequest) (*orgs.Organization, error)
	listFunc        func(userID string) ([]*orgs.Organization, error)
	getFunc         func(userID, orgID string) (*orgs.Organization, error)
	listMembersFunc func(actorID, orgID string) ([]*orgs.Member, error)
	updateFunc      func(actorID, orgID, userID, role string) (*orgs.Member, error)
	removeFunc      func(actorID, orgID, userID string) error
	inviteFunc      func(actorID, orgID string, req orgs.InviteRequest) (*orgs.Invitation, error)
	listInvFunc     func(actorID, orgID string) ([]*orgs.Invitation, error)
	getInvFunc      func(actor orgs.Actor, id string) (*orgs.Invitation, error)
	acceptFunc      func(actor orgs.Actor, id string) (*orgs.Member, error)
	rejectFunc      func(actor orgs.Actor, id string) (*orgs.Invitation, error)
	cancelFunc      func(actorID, id string) (*orgs.Invitation, error)
}

func (m *mockOrgs) CreateOrganization(_ context.Context, creatorID string, req orgs.CreateOrgRequest) (*orgs.Organization, error) {
	return m.createFunc(creatorID, req)
}

func (m *mockOrgs) ListForUser(_ context.Context, userID string) ([]*orgs.Organization, error) {
	return m.listFunc(userID)
}

func (m *mockOrgs) GetForMember(_ context.Context, userID, orgID string) (*orgs.Organization, error) {
	return m.getFunc(userID, orgID)
}

func (m *mockOrgs) ListMembers(_ context.Context, actorID, orgID string) ([]*orgs.Member, error) {
	return m.listMembersFunc(actorID, orgID)
}

func (m *mockOrgs) UpdateMemberRole(_ context.Context, actorID, orgID, userID, role string) (*orgs.Member, error) {
	return m.updateFunc(actorID, orgID, userID, role)
}

func (m *mockOrgs) RemoveMember(_ context.Context, actorID, orgID, userID string) error {
	return m.removeFunc(actorID, orgID, userID)
}

func (m *mockOrgs) Invite(_ context.Context, actorID, orgID string, req orgs.InviteRequest) (*orgs.Invitation, error) {
	return m.inviteFunc(actorID, orgID, req)
}

func (m *mockOrgs) ListInvitations(_ context.Context, actorID, orgID string) ([]*orgs.Invitation, error) {
	return m.listInvFunc(actorID, orgID)
}

func (m *mockOrgs) GetInvitation(_ context.Context, actor orgs.Actor, id string) (*orgs.Invitation, error) {
	return m.getInvFunc(actor, id)
}

func (m *mockOrgs) Accept(_ context.Context, actor orgs.Actor, id string) (*orgs.Member, error) {
	return m.acceptFunc(actor, id)
}

func (m *mockOrgs) Reject(_ context.Context, actor orgs.Actor, id string) (*orgs.Invitation, error) {
	return m.rejectFunc(actor, id)
}

func (m *mockOrgs) Cancel(_ context.Context, actorID, id string) (*orgs.Invitation, error) {
	return m.cancelFunc(actorID, id)
}

// mockRecords records the last call it received
type mockRecords struct {
	lastSession *rbac.SessionContext
	lastTable   string
	lastID      string
	lastOpts    records.ListOptions
	lastInput   map[string]interface{}
	err         error
}

func (m *mockRecords) capture(sess *rbac.SessionContext, table, id string) {
	m.lastSession, m.lastTable, m.lastID = sess, table, id
}

func (m *mockRecords) List(_ context.Context, sess *rbac.SessionContext, table string, opts records.ListOptions) (*records.Page, error) {
	m.capture(sess, table, "")
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return &records.Page{Records: []records.Record{{"id": "1", "name": "a"}}, Total: 1}, nil
}

func (m *mockRecords) Get(_ context.Context, sess *rbac.SessionContext, table, id string) (records.Record, error) {
	m.capture(sess, table, id)
	if m.err != nil {
		return nil, m.err
	}
	return records.Record{"id": id}, nil
}

func (m *mockRecords) Create(_ context.Context, sess *rbac.SessionContext, table string, input map[string]interface{}) (records.Record, error) {
	m.capture(sess, table, "")
	m.lastInput = input
	if m.err != nil {
		return nil, m.err
	}
	rec := records.Record{"id": "new"}
	for k, v := range input {
		rec[k] = v
	}
	return rec, nil
}

func (m *mockRecords) Update(_ context.Context, sess *rbac.SessionContext, table, id string, input map[string]interface{}) (records.Record, error) {
	m.capture(sess, table, id)
	m.lastInput = input
	if m.err != nil {
		return nil, m.err
	}
	return records.Record{"id": id}, nil
}

func (m *mockRecords) Delete(_ context.Context, sess *rbac.SessionContext, table, id string) error {
	m.capture(sess, table, id)
	return m.err
}

type mockBatches struct {
	last   batch.Request
	result *batch.Result
	err    error
}

func (m *mockBatches) Run(_ context.Context, req batch.Request) (*batch.Result, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type testDeps struct {
	sessions *mockSessions
	tokens   *mockTokens
	orgs     *mockOrgs
	records  *mockRecords
	batches  *mockBatches
}

func newTestServer(t *testing.T) (*Server, *testDeps) {
	t.Helper()
	deps := &testDeps{
		sessions: &mockSessions{},
		tokens:   &mockTokens{},
		orgs:     &mockOrgs{},
		records:  &mockRecords{},
		batches:  &mockBatches{result: &batch.Result{}},
	}
	server := NewServer(Dependencies{
		Sessions:      deps.sessions,
		Tokens:        deps.tokens,
		Users:         mockUsers{},
		Organizations: deps.orgs,
		Records:       deps.records,
		Batches:       deps.batches,
		Logger:        observability.NewLogger(observability.ErrorLevel, io.Discard),
		MaxBodyBytes:  1 << 20,
	})
	return server, deps
}

// do sends a request through the full handler chain. An empty token sends
// an anonymous request.
func do(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) map[string]interface{} {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	body := decodeBody(t, w)
	require.Equal(t, code, body["error"])
	return body
}

var _ http.Handler = (*Server)(nil)
