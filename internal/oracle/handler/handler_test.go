package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aegis-relief/aegis/internal/activity"
	"github.com/aegis-relief/aegis/internal/attest"
	"github.com/aegis-relief/aegis/internal/chain"
	"github.com/aegis-relief/aegis/internal/mission"
	"github.com/aegis-relief/aegis/internal/oracle/handler"
	"github.com/aegis-relief/aegis/internal/relief"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// stubLedger accepts mock-shaped proofs (empty path, root == leaf).
type stubLedger struct {
	configured bool
	failNext   bool
	views      map[uint64]chain.RequestView
}

func (s *stubLedger) Configured() bool { return s.configured }

func (s *stubLedger) VerifyEvent(_ context.Context, _ uint64, path [][32]byte, root, leaf [32]byte) (common.Hash, error) {
	if s.failNext {
		return common.Hash{}, errors.New("rpc down")
	}
	if len(path) != 0 || root != leaf {
		return common.Hash{}, errors.New("proof rejected")
	}
	return common.HexToHash("0xbeef"), nil
}

func (s *stubLedger) ApproveAid(_ context.Context, _ uint64, _ common.Address, _ uint64) (common.Hash, error) {
	if s.failNext {
		return common.Hash{}, errors.New("rpc down")
	}
	return common.HexToHash("0xfeed"), nil
}

func (s *stubLedger) ConfirmDelivery(_ context.Context, _ uint64, _ [][32]byte, _, _ [32]byte) (common.Hash, error) {
	return common.HexToHash("0xdead"), nil
}

func (s *stubLedger) ReadRequest(_ context.Context, id uint64) (chain.RequestView, error) {
	v, ok := s.views[id]
	if !ok {
		return chain.RequestView{}, chain.ErrLedgerRead
	}
	return v, nil
}

func newTestRouter(ledger mission.Ledger) (*gin.Engine, *mission.Service) {
	gin.SetMode(gin.TestMode)

	log := activity.NewLog(zap.NewNop())
	missions := mission.NewService(ledger, attest.NewMockGenerator(), log, zap.NewNop())

	oracleH := handler.NewOracleHandler(missions, common.Address{}, zap.NewNop())
	reliefH := handler.NewReliefHandler(relief.NewService(relief.DefaultZones(), nil, zap.NewNop()), zap.NewNop())

	r := gin.New()
	api := r.Group("/api")
	oracleH.Register(api)
	reliefH.Register(api)
	r.GET("/healthz", oracleH.Health)
	return r, missions
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVerifyEndpoint_returnsTxHash(t *testing.T) {
	r, missions := newTestRouter(&stubLedger{configured: true})

	w := doJSON(t, r, http.MethodPost, "/api/requests/42/verify",
		map[string]any{"lat": 51.75, "lng": -1.25, "claim": "quake"})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		TxHash string `json:"tx_hash"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TxHash == "" {
		t.Error("expected a transaction hash in the response")
	}
	if len(missions.Activity()) != 1 {
		t.Errorf("expected one activity event, got %d", len(missions.Activity()))
	}
}

func TestVerifyEndpoint_absentResultIs502(t *testing.T) {
	r, _ := newTestRouter(&stubLedger{configured: true, failNext: true})

	w := doJSON(t, r, http.MethodPost, "/api/requests/42/verify",
		map[string]any{"lat": 0.0, "lng": 0.0, "claim": "quake"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("status %d, want 502", w.Code)
	}
}

func TestVerifyEndpoint_unconfiguredChain(t *testing.T) {
	r, _ := newTestRouter(&stubLedger{configured: false})

	w := doJSON(t, r, http.MethodPost, "/api/requests/42/verify",
		map[string]any{"claim": "quake"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("status %d, want 502 when unconfigured", w.Code)
	}
}

func TestApproveEndpoint_requiresProvider(t *testing.T) {
	// No default provider configured and none supplied.
	r, _ := newTestRouter(&stubLedger{configured: true})

	w := doJSON(t, r, http.MethodPost, "/api/requests/42/approve",
		map[string]any{"cost_usd": 75})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400 without any provider address", w.Code)
	}
}

func TestApproveEndpoint_success(t *testing.T) {
	r, _ := newTestRouter(&stubLedger{configured: true})

	w := doJSON(t, r, http.MethodPost, "/api/requests/42/approve",
		map[string]any{"provider": "0x2222222222222222222222222222222222222222", "cost_usd": 75})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	ledger := &stubLedger{
		configured: true,
		views: map[uint64]chain.RequestView{
			42: {ID: 42, Status: chain.StatusApproved, CostUSD: 75},
		},
	}
	r, _ := newTestRouter(ledger)

	w := doJSON(t, r, http.MethodGet, "/api/requests/42", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	var view chain.RequestView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Status != chain.StatusApproved {
		t.Errorf("status: got %q, want APPROVED", view.Status)
	}
}

func TestStatusEndpoint_badID(t *testing.T) {
	r, _ := newTestRouter(&stubLedger{configured: true})

	for _, path := range []string{"/api/requests/abc", "/api/requests/0"} {
		w := doJSON(t, r, http.MethodGet, path, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", path, w.Code)
		}
	}
}

func TestActivityEndpoint(t *testing.T) {
	r, missions := newTestRouter(&stubLedger{configured: true})
	missions.VerifyEvent(context.Background(), 42, 51.75, -1.25, "quake")

	w := doJSON(t, r, http.MethodGet, "/api/activity", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}

	var resp struct {
		Count  int              `json:"count"`
		Events []activity.Event `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || len(resp.Events) != 1 {
		t.Fatalf("expected one event, got count=%d len=%d", resp.Count, len(resp.Events))
	}
	if resp.Events[0].Type != activity.TypeEventVerified {
		t.Errorf("event type: got %q", resp.Events[0].Type)
	}
}

func TestNearbyEndpoint(t *testing.T) {
	r, _ := newTestRouter(&stubLedger{configured: true})

	w := doJSON(t, r, http.MethodGet, "/api/nearby?lat=51.752&lng=-1.2577", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp struct {
		Safe bool `json:"safe"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Safe {
		t.Error("central Oxford should be inside the flash-flood zone")
	}
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(&stubLedger{configured: false})

	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp struct {
		ChainConfigured bool `json:"chain_configured"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ChainConfigured {
		t.Error("health must report an unconfigured chain")
	}
}
