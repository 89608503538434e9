package rtdb

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

type recordedRequest struct {
	method string
	path   string
	query  map[string]string
	body   []byte
}

func newTestREST(t *testing.T, status int, respBody string) (*RESTStore, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = map[string]string{}
		for k, vs := range r.URL.Query() {
			rec.query[k] = vs[0]
		}
		rec.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)

	s, err := NewRESTStore(srv.URL, "s3cret")
	if err != nil {
		t.Fatalf("NewRESTStore: %v", err)
	}
	return s, rec
}

func TestRESTStore_GetDecodesAndAuths(t *testing.T) {
	s, rec := newTestREST(t, 200, `{"u1":{"updatedAt":123}}`)

	got, err := s.Get(context.Background(), "players")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.method != http.MethodGet || rec.path != "/players.json" {
		t.Fatalf("unexpected request %s %s", rec.method, rec.path)
	}
	if rec.query["auth"] != "s3cret" {
		t.Fatalf("auth token missing: %v", rec.query)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("unexpected payload: %#v", got)
	}
	row := m["u1"].(map[string]any)
	if row["updatedAt"] != float64(123) {
		t.Fatalf("unexpected row: %#v", row)
	}
}

func TestRESTStore_AbsentPathIsNil(t *testing.T) {
	s, _ := newTestREST(t, 200, `null`)
	got, err := s.Get(context.Background(), "players/ghost")
	if err != nil || got != nil {
		t.Fatalf("expected nil for null body, got %#v err=%v", got, err)
	}

	s404, _ := newTestREST(t, 404, ``)
	got, err = s404.Get(context.Background(), "players/ghost")
	if err != nil || got != nil {
		t.Fatalf("expected nil for 404, got %#v err=%v", got, err)
	}
}

func TestRESTStore_PatchEncodesRemoveAsNull(t *testing.T) {
	s, rec := newTestREST(t, 200, `{}`)

	err := s.Patch(context.Background(), "", map[string]any{
		"games/g1": Remove,
		"players/u1/updatedAt": float64(9),
	})
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if rec.method != http.MethodPatch || rec.path != "/.json" {
		t.Fatalf("unexpected request %s %s", rec.method, rec.path)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.body, &payload); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	v, present := payload["games/g1"]
	if !present || v != nil {
		t.Fatalf("remove marker must serialize as explicit null: %#v", payload)
	}
	if payload["players/u1/updatedAt"] != float64(9) {
		t.Fatalf("value write lost: %#v", payload)
	}
}

func TestRESTStore_QueryParamsAreJSONEncoded(t *testing.T) {
	s, rec := newTestREST(t, 200, `{}`)

	_, err := s.QueryChildren(context.Background(), "trainingRecords", Query{
		OrderBy:      "purgeAt",
		EndAt:        int64(5000),
		LimitToFirst: 250,
	})
	if err != nil {
		t.Fatalf("QueryChildren: %v", err)
	}
	if rec.query["orderBy"] != `"purgeAt"` {
		t.Fatalf("orderBy must be JSON-quoted, got %q", rec.query["orderBy"])
	}
	if rec.query["endAt"] != "5000" {
		t.Fatalf("endAt = %q", rec.query["endAt"])
	}
	if rec.query["limitToFirst"] != "250" {
		t.Fatalf("limitToFirst = %q", rec.query["limitToFirst"])
	}
}

func TestRESTStore_QueryEqualToBool(t *testing.T) {
	s, rec := newTestREST(t, 200, `{}`)

	_, err := s.QueryChildren(context.Background(), "trainingRecords", Query{
		OrderBy: "processed",
		EqualTo: true,
	})
	if err != nil {
		t.Fatalf("QueryChildren: %v", err)
	}
	if rec.query["equalTo"] != "true" {
		t.Fatalf("equalTo = %q", rec.query["equalTo"])
	}
}

func TestRESTStore_ShallowKeys(t *testing.T) {
	s, rec := newTestREST(t, 200, `{"u1":true,"u2":true}`)

	keys, err := s.ShallowKeys(context.Background(), "idempotencyMarkers")
	if err != nil {
		t.Fatalf("ShallowKeys: %v", err)
	}
	if rec.query["shallow"] != "true" {
		t.Fatalf("shallow param missing: %v", rec.query)
	}
	if len(keys) != 2 {
		t.Fatalf("keys = %v", keys)
	}
}

func TestRESTStore_ErrorStatusFailsLoud(t *testing.T) {
	s, _ := newTestREST(t, 500, `boom`)
	if err := s.Patch(context.Background(), "", map[string]any{"games/g1": Remove}); err == nil {
		t.Fatalf("expected error for 500 response")
	}
}
