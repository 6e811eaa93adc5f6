package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/christopherjohns/socialhub/internal/ws"
	"github.com/christopherjohns/socialhub/internal/ws/wstest"
)

func TestChatRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := registerUser(t, ts.engine, "alice")
	bob := registerUser(t, ts.engine, "bob")
	carol := registerUser(t, ts.engine, "carol")

	rec := doJSONRequest(t, ts.engine, http.MethodPost, "/api/chat/conversations", map[string]any{
		"participant_ids": []int64{bob.ID},
	}, alice.Header)
	assertStatus(t, rec, http.StatusCreated)
	var conv struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, rec.Body.Bytes(), &conv)

	_, b1, _ := wstest.Connect(t, ts.chatHub, bob.ID)
	_, b2, _ := wstest.Connect(t, ts.chatHub, bob.ID)
	_, a1, _ := wstest.Connect(t, ts.chatHub, alice.ID)

	rec = doJSONRequest(t, ts.engine, http.MethodPost, "/api/chat/messages", map[string]any{
		"conversation_id": conv.ID, "content": "hi bob",
	}, alice.Header)
	assertStatus(t, rec, http.StatusCreated)

	b1.WaitType(t, ws.TypeReceiveMessage)
	b2.WaitType(t, ws.TypeReceiveMessage)
	wstest.Settle()
	if n := a1.Count(t, ws.TypeReceiveMessage); n != 0 {
		t.Fatalf("sender received %d copies of own message", n)
	}
	if n := unreadCount(t, ts.engine, bob); n != 1 {
		t.Fatalf("expected one notification for bob, got %d", n)
	}
	if n := unreadCount(t, ts.engine, alice); n != 0 {
		t.Fatalf("expected no notification for alice, got %d", n)
	}

	path := fmt.Sprintf("/api/chat/conversations/%d/messages", conv.ID)
	rec = doJSONRequest(t, ts.engine, http.MethodGet, path, nil, bob.Header)
	assertStatus(t, rec, http.StatusOK)
	var msgs []struct {
		Content string `json:"content"`
	}
	decodeJSON(t, rec.Body.Bytes(), &msgs)
	if len(msgs) != 1 || msgs[0].Content != "hi bob" {
		t.Fatalf("unexpected history %s", rec.Body.String())
	}

	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodGet, path, nil, carol.Header), http.StatusForbidden)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodGet,
		fmt.Sprintf("/api/chat/conversations/%d", conv.ID), nil, carol.Header), http.StatusForbidden)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodPut,
		fmt.Sprintf("/api/chat/conversations/%d/read", conv.ID), nil, bob.Header), http.StatusNoContent)

	rec = doJSONRequest(t, ts.engine, http.MethodGet, "/api/chat/conversations", nil, bob.Header)
	assertStatus(t, rec, http.StatusOK)
	var convs []struct {
		ID          int64 `json:"id"`
		UnreadCount int   `json:"unread_count"`
	}
	decodeJSON(t, rec.Body.Bytes(), &convs)
	if len(convs) != 1 || convs[0].ID != conv.ID || convs[0].UnreadCount != 0 {
		t.Fatalf("unexpected conversation list %s", rec.Body.String())
	}

	rec = doJSONRequest(t, ts.engine, http.MethodPost, "/api/chat/messages", map[string]any{
		"conversation_id": conv.ID, "content": "  ",
	}, alice.Header)
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestPostRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := registerUser(t, ts.engine, "alice")
	bob := registerUser(t, ts.engine, "bob")

	rec := doJSONRequest(t, ts.engine, http.MethodPost, "/api/posts", map[string]any{
		"text_content": "my first post",
	}, alice.Header)
	assertStatus(t, rec, http.StatusCreated)
	var p struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, rec.Body.Bytes(), &p)
	postPath := fmt.Sprintf("/api/posts/%d", p.ID)

	rec = doJSONRequest(t, ts.engine, http.MethodGet, "/api/posts/feed", nil, bob.Header)
	assertStatus(t, rec, http.StatusOK)
	var feed struct {
		Posts      []struct{ ID int64 } `json:"posts"`
		TotalCount int                  `json:"total_count"`
		HasMore    bool                 `json:"has_more"`
	}
	decodeJSON(t, rec.Body.Bytes(), &feed)
	if feed.TotalCount != 1 || len(feed.Posts) != 1 || feed.HasMore {
		t.Fatalf("unexpected feed %s", rec.Body.String())
	}
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodGet,
		fmt.Sprintf("/api/posts/user/%d", alice.ID), nil, bob.Header), http.StatusOK)

	// Self like: no notice.
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodPost, postPath+"/like", nil, alice.Header), http.StatusOK)
	if n := unreadCount(t, ts.engine, alice); n != 0 {
		t.Fatalf("self like produced %d notifications", n)
	}

	rec = doJSONRequest(t, ts.engine, http.MethodPost, postPath+"/like", nil, bob.Header)
	assertStatus(t, rec, http.StatusOK)
	var like struct {
		IsLiked    bool `json:"is_liked"`
		LikesCount int  `json:"likes_count"`
	}
	decodeJSON(t, rec.Body.Bytes(), &like)
	if !like.IsLiked || like.LikesCount != 2 {
		t.Fatalf("unexpected like result %s", rec.Body.String())
	}

	_, watcher, _ := wstest.Connect(t, ts.postHub, alice.ID)
	rec = doJSONRequest(t, ts.engine, http.MethodPost, "/api/posts/comments", map[string]any{
		"post_id": p.ID, "content": "great post",
	}, bob.Header)
	assertStatus(t, rec, http.StatusCreated)
	var comment struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, rec.Body.Bytes(), &comment)
	watcher.WaitType(t, ws.TypeNewComment)

	if n := unreadCount(t, ts.engine, alice); n != 2 {
		t.Fatalf("expected like and comment notifications, got %d", n)
	}

	rec = doJSONRequest(t, ts.engine, http.MethodGet, postPath+"/comments", nil, alice.Header)
	assertStatus(t, rec, http.StatusOK)
	var comments []struct{ ID int64 }
	decodeJSON(t, rec.Body.Bytes(), &comments)
	if len(comments) != 1 || comments[0].ID != comment.ID {
		t.Fatalf("unexpected comments %s", rec.Body.String())
	}

	commentPath := fmt.Sprintf("/api/posts/comments/%d", comment.ID)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodPost, commentPath+"/like", nil, alice.Header), http.StatusOK)
	if n := unreadCount(t, ts.engine, bob); n != 1 {
		t.Fatalf("expected comment like notification for bob, got %d", n)
	}
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodPut, commentPath,
		map[string]string{"content": "hijack"}, alice.Header), http.StatusForbidden)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodPut, commentPath,
		map[string]string{"content": "great post!"}, bob.Header), http.StatusOK)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodDelete, commentPath, nil, bob.Header), http.StatusNoContent)

	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodPut, postPath,
		map[string]string{"text_content": "edited"}, bob.Header), http.StatusForbidden)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodDelete, postPath, nil, bob.Header), http.StatusForbidden)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodDelete, postPath, nil, alice.Header), http.StatusNoContent)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodGet, postPath, nil, alice.Header), http.StatusNotFound)
}

func TestFriendRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := registerUser(t, ts.engine, "alice")
	bob := registerUser(t, ts.engine, "bob")

	_, bobNotes, _ := wstest.Connect(t, ts.notifyHub, bob.ID)

	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodPost, "/api/friends/requests",
		map[string]int64{"addressee_id": alice.ID}, alice.Header), http.StatusBadRequest)

	rec := doJSONRequest(t, ts.engine, http.MethodPost, "/api/friends/requests",
		map[string]int64{"addressee_id": bob.ID}, alice.Header)
	assertStatus(t, rec, http.StatusCreated)
	var fr struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, rec.Body.Bytes(), &fr)
	bobNotes.WaitType(t, ws.TypeReceiveNotification)

	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodPost, "/api/friends/requests",
		map[string]int64{"addressee_id": bob.ID}, alice.Header), http.StatusConflict)

	rec = doJSONRequest(t, ts.engine, http.MethodGet, "/api/friends/requests/pending", nil, bob.Header)
	assertStatus(t, rec, http.StatusOK)
	var pending []struct{ ID int64 }
	decodeJSON(t, rec.Body.Bytes(), &pending)
	if len(pending) != 1 || pending[0].ID != fr.ID {
		t.Fatalf("unexpected pending %s", rec.Body.String())
	}

	acceptPath := fmt.Sprintf("/api/friends/requests/%d/accept", fr.ID)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodPost, acceptPath, nil, alice.Header), http.StatusForbidden)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodPost, acceptPath, nil, bob.Header), http.StatusOK)
	if n := unreadCount(t, ts.engine, alice); n != 1 {
		t.Fatalf("expected accepted notification for alice, got %d", n)
	}

	rec = doJSONRequest(t, ts.engine, http.MethodGet, "/api/friends", nil, alice.Header)
	assertStatus(t, rec, http.StatusOK)
	var friends []struct{ ID int64 }
	decodeJSON(t, rec.Body.Bytes(), &friends)
	if len(friends) != 1 || friends[0].ID != bob.ID {
		t.Fatalf("unexpected friends %s", rec.Body.String())
	}

	followPath := fmt.Sprintf("/api/friends/follow/%d", alice.ID)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodPost, followPath, nil, bob.Header), http.StatusOK)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodPost, followPath, nil, bob.Header), http.StatusOK)
	if n := unreadCount(t, ts.engine, alice); n != 2 {
		t.Fatalf("repeat follow must notify once, got %d notifications", n)
	}

	rec = doJSONRequest(t, ts.engine, http.MethodGet, fmt.Sprintf("/api/friends/status/%d", alice.ID), nil, bob.Header)
	assertStatus(t, rec, http.StatusOK)
	var status struct {
		AreFriends  bool `json:"are_friends"`
		IsFollowing bool `json:"is_following"`
	}
	decodeJSON(t, rec.Body.Bytes(), &status)
	if !status.AreFriends || !status.IsFollowing {
		t.Fatalf("unexpected status %s", rec.Body.String())
	}

	rec = doJSONRequest(t, ts.engine, http.MethodGet, fmt.Sprintf("/api/friends/%d/followers", alice.ID), nil, bob.Header)
	assertStatus(t, rec, http.StatusOK)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodGet,
		fmt.Sprintf("/api/friends/stats/%d", alice.ID), nil, bob.Header), http.StatusOK)

	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodDelete, followPath, nil, bob.Header), http.StatusNoContent)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodDelete, followPath, nil, bob.Header), http.StatusNotFound)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodDelete,
		fmt.Sprintf("/api/friends/%d", bob.ID), nil, alice.Header), http.StatusNoContent)
}

func TestNotificationRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := registerUser(t, ts.engine, "alice")
	bob := registerUser(t, ts.engine, "bob")

	for i := 0; i < 2; i++ {
		doJSONRequest(t, ts.engine, http.MethodPost, fmt.Sprintf("/api/friends/follow/%d", alice.ID), nil, bob.Header)
		doJSONRequest(t, ts.engine, http.MethodDelete, fmt.Sprintf("/api/friends/follow/%d", alice.ID), nil, bob.Header)
	}

	rec := doJSONRequest(t, ts.engine, http.MethodGet, "/api/notifications?take=1", nil, alice.Header)
	assertStatus(t, rec, http.StatusOK)
	var list []struct {
		ID   int64  `json:"id"`
		Type string `json:"type"`
	}
	decodeJSON(t, rec.Body.Bytes(), &list)
	if len(list) != 1 || list[0].Type != "new_follower" {
		t.Fatalf("unexpected notifications %s", rec.Body.String())
	}

	_, notes, _ := wstest.Connect(t, ts.notifyHub, alice.ID)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodPut,
		fmt.Sprintf("/api/notifications/%d/read", list[0].ID), nil, bob.Header), http.StatusNotFound)
	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodPut,
		fmt.Sprintf("/api/notifications/%d/read", list[0].ID), nil, alice.Header), http.StatusNoContent)

	var count struct {
		Count int `json:"count"`
	}
	if err := notes.WaitType(t, ws.TypeUnreadNotificationsCount).Decode(&count); err != nil || count.Count != 1 {
		t.Fatalf("expected pushed count 1, got %+v (%v)", count, err)
	}

	assertStatus(t, doJSONRequest(t, ts.engine, http.MethodPut, "/api/notifications/mark-all-read", nil, alice.Header), http.StatusNoContent)
	if n := unreadCount(t, ts.engine, alice); n != 0 {
		t.Fatalf("expected all read, got %d", n)
	}
}
