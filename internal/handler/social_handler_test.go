package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/habits/internal/model"
)

func TestSocialHandler_ListUsers(t *testing.T) {
	svc := &mockSocialService{
		listUsersFn: func(_ context.Context, viewerID string) ([]model.UserWithFollowState, error) {
			if viewerID != "u1" {
				t.Errorf("viewerID = %q", viewerID)
			}
			return []model.UserWithFollowState{
				{User: model.User{ID: "u2", Name: "Bob", Email: "bob@example.com"}, Following: true},
				{User: model.User{ID: "u3", Name: "Carol"}},
			}, nil
		},
	}
	h := NewSocialHandler(svc, &mockLogService{})

	w := httptest.NewRecorder()
	h.ListUsers(w, withUserID(httptest.NewRequest(http.MethodGet, "/api/users", nil), "u1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 2 || resp[0]["following"] != true || resp[1]["following"] != false {
		t.Errorf("resp = %v", resp)
	}
	if _, ok := resp[0]["email"]; ok {
		t.Error("other users' email must not be exposed")
	}
}

func TestSocialHandler_FollowUnfollow(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		err      error
		wantCode int
	}{
		{"フォロー", http.MethodPut, nil, http.StatusNoContent},
		{"自分をフォロー", http.MethodPut, model.NewSelfFollowError(), http.StatusBadRequest},
		{"存在しないユーザー", http.MethodPut, model.NewUserNotFoundError(), http.StatusNotFound},
		{"フォロー解除", http.MethodDelete, nil, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotFollower, gotFollowed string
			record := func(_ context.Context, followerID, followedID string) error {
				gotFollower, gotFollowed = followerID, followedID
				return tt.err
			}
			svc := &mockSocialService{followFn: record, unfollowFn: record}
			h := NewSocialHandler(svc, &mockLogService{})

			req := httptest.NewRequest(tt.method, "/api/users/u2/follow", nil)
			req = withURLParams(withUserID(req, "u1"), map[string]string{"id": "u2"})
			w := httptest.NewRecorder()
			if tt.method == http.MethodPut {
				h.Follow(w, req)
			} else {
				h.Unfollow(w, req)
			}

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if gotFollower != "u1" || gotFollowed != "u2" {
				t.Errorf("args = %q %q", gotFollower, gotFollowed)
			}
		})
	}
}

func TestSocialHandler_Feed(t *testing.T) {
	ts := time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)
	svc := &mockSocialService{
		feedFn: func(context.Context, string) ([]model.FeedEntry, error) {
			return []model.FeedEntry{
				{
					Log:         model.Log{ID: "l1", UserID: "u2", Activity: "Running", Value: 30, Timestamp: ts, ProofKey: "proofs/u2/l1.jpg", CheerCount: 2},
					UserName:    "Bob",
					CheeredByMe: true,
				},
			}, nil
		},
	}
	h := NewSocialHandler(svc, &mockLogService{})

	w := httptest.NewRecorder()
	h.Feed(w, withUserID(httptest.NewRequest(http.MethodGet, "/api/feed", nil), "u1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("len = %d", len(resp))
	}
	e := resp[0]
	if e["id"] != "l1" || e["user_name"] != "Bob" || e["cheered_by_me"] != true || e["cheer_count"] != 2.0 {
		t.Errorf("entry = %v", e)
	}
	if e["proof_url"] != "/uploads/proofs/u2/l1.jpg" {
		t.Errorf("proof_url = %v", e["proof_url"])
	}
}

func TestSocialHandler_Feed_EmptyIsArray(t *testing.T) {
	svc := &mockSocialService{
		feedFn: func(context.Context, string) ([]model.FeedEntry, error) { return nil, nil },
	}
	h := NewSocialHandler(svc, &mockLogService{})

	w := httptest.NewRecorder()
	h.Feed(w, withUserID(httptest.NewRequest(http.MethodGet, "/api/feed", nil), "u1"))

	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want []", body)
	}
}
