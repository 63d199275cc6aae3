package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainaudit "github.com/zime-ai/nucleus/internal/domain/audit"
	"github.com/zime-ai/nucleus/internal/testsupport"
)

type auditListBody struct {
	Data []domainaudit.Event `json:"data"`
	Meta Meta                `json:"meta"`
}

func TestAuditHandler_Lists(t *testing.T) {
	t.Parallel()

	svc := domainaudit.NewService(testsupport.OpenDB(t), nil)
	ctx := context.Background()
	require.NoError(t, svc.Record(ctx, domainaudit.Entry{Actor: testEmail, Action: domainaudit.ActionSignIn, Outcome: domainaudit.OutcomeSuccess}))
	require.NoError(t, svc.Record(ctx, domainaudit.Entry{
		Actor: testEmail, Action: domainaudit.ActionDurationSaved,
		EntityType: "meeting", EntityID: "m-1", Outcome: domainaudit.OutcomeSuccess,
	}))

	h := NewAuditHandler(svc, nil)
	r := chi.NewRouter()
	r.Get("/audit", h.ListEvents)
	r.Get("/audit/{entity_type}/{entity_id}", h.ListEntityEvents)

	rr := serve(r, httptest.NewRequest(http.MethodGet, "/audit?limit=1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	all := decodeBody[auditListBody](t, rr)
	assert.Len(t, all.Data, 1)
	assert.Equal(t, 2, all.Meta.Total)

	rr = serve(r, httptest.NewRequest(http.MethodGet, "/audit/meeting/m-1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	byEntity := decodeBody[auditListBody](t, rr)
	require.Len(t, byEntity.Data, 1)
	assert.Equal(t, domainaudit.ActionDurationSaved, byEntity.Data[0].Action)
}
