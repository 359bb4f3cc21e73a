package settlement

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trancheclear/native/tranche"
	"trancheclear/services/settlement/ledger"
	"trancheclear/storage/journal"
)

const testToken = "admin-secret"

type adminFixture struct {
	server *httptest.Server
	mem    *ledger.Memory
	coord  *Coordinator
}

func newAdminFixture(t *testing.T) adminFixture {
	t.Helper()
	mem := newMemoryLedger()
	mem.Advance(24 * time.Hour)
	j := openJournal(t)
	coord := newTestCoordinator(t, uniquePool(t), mem, WithJournal(j))
	sup, err := NewSupervisor(quietLogger(), coord)
	require.NoError(t, err)
	auth, err := NewAuthenticator(testToken)
	require.NoError(t, err)
	srv := httptest.NewServer(NewAdminServer(sup, auth, j))
	t.Cleanup(srv.Close)
	return adminFixture{server: srv, mem: mem, coord: coord}
}

func (f adminFixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAdminRequiresBearerToken(t *testing.T) {
	f := newAdminFixture(t)
	resp, err := f.server.Client().Get(f.server.URL + "/pools")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/pools", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	resp2, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestAdminMetricsAreUnauthenticated(t *testing.T) {
	f := newAdminFixture(t)
	step(t, f.coord)
	resp, err := f.server.Client().Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "epochd_coordinator_steps_total")
}

func TestAdminListsAndDescribesPools(t *testing.T) {
	f := newAdminFixture(t)
	require.Equal(t, OutcomeExecutedAtClose, step(t, f.coord))

	resp := f.do(t, http.MethodGet, "/pools", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	require.Equal(t, f.coord.PoolID(), list[0].Pool)
	require.Equal(t, uint64(2), list[0].EpochID)

	resp = f.do(t, http.MethodGet, "/pools/"+f.coord.PoolID(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.Equal(t, string(OutcomeExecutedAtClose), status.LastOutcome)
	require.Len(t, status.Recent, 1)
	require.Equal(t, "close", status.Recent[0].Action)

	resp = f.do(t, http.MethodGet, "/pools/unknown", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminReportsLastConfirmedSubmission(t *testing.T) {
	f := newAdminFixture(t)
	f.mem.AddOrders(tranche.OrderState{SeniorSupply: dec("2000")})
	describe := func() Status {
		resp := f.do(t, http.MethodGet, "/pools/"+f.coord.PoolID(), "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var status Status
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		return status
	}

	require.Equal(t, OutcomeClosed, step(t, f.coord))
	require.Nil(t, describe().LastSubmission)

	require.Equal(t, OutcomeSubmitted, step(t, f.coord))
	status := describe()
	require.NotNil(t, status.LastSubmission)
	require.Equal(t, "submit", status.LastSubmission.Action)
	require.Equal(t, uint64(1), status.LastSubmission.EpochID)
	require.Equal(t, journal.OutcomeConfirmed, status.LastSubmission.Outcome)
	require.True(t, dec(status.LastSubmission.SeniorSupply).Equal(dec("1000")), "got %s", status.LastSubmission.SeniorSupply)
	require.NotEmpty(t, status.LastSubmission.TxHash)

	f.mem.Advance(30 * time.Minute)
	require.Equal(t, OutcomeExecuted, step(t, f.coord))
	status = describe()
	require.Equal(t, uint64(2), status.EpochID)
	require.Nil(t, status.LastSubmission)
}

func TestAdminPauseAndResume(t *testing.T) {
	f := newAdminFixture(t)
	resp := f.do(t, http.MethodPost, "/pools/"+f.coord.PoolID()+"/pause", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.True(t, f.coord.Status().Paused)
	require.Equal(t, OutcomePaused, step(t, f.coord))

	resp = f.do(t, http.MethodPost, "/pools/"+f.coord.PoolID()+"/resume", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.False(t, f.coord.Status().Paused)
	require.Equal(t, OutcomeExecutedAtClose, step(t, f.coord))
}

func TestAdminEpochParams(t *testing.T) {
	f := newAdminFixture(t)
	path := "/pools/" + f.coord.PoolID() + "/epoch-params"

	resp := f.do(t, http.MethodPost, path, `{"minimum_epoch_time":"2h","minimum_challenge_time":"15m"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Confirmations []json.RawMessage `json:"confirmations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Confirmations, 2)
	require.Equal(t, 2, f.mem.Calls(ledger.OpAdmin))

	for name, payload := range map[string]string{
		"malformed":     `{`,
		"empty":         `{}`,
		"unparseable":   `{"minimum_epoch_time":"soon"}`,
		"out of bounds": `{"minimum_epoch_time":"1.5s"}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, path, payload)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	require.Equal(t, 2, f.mem.Calls(ledger.OpAdmin))

	f.mem.Inject(ledger.OpAdmin, ledger.ErrReverted)
	resp = f.do(t, http.MethodPost, path, `{"minimum_challenge_time":"20m"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	f.mem.Inject(ledger.OpAdmin, ledger.ErrNotConfigured)
	resp = f.do(t, http.MethodPost, path, `{"minimum_challenge_time":"20m"}`)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}
