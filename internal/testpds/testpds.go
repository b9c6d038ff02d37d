// Package testpds provides an in-process fake PDS for exercising the client
// packages over real HTTP. It implements just enough of the com.atproto and
// app.bsky surface to serve the tests: canned credentials, an in-memory
// record store, and the XRPC error body shape.
package testpds

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Server is the fake PDS state. Construct with New, then mount Handler on an
// httptest.Server.
type Server struct {
	DID      string
	Handle   string
	Password string

	AccessJwt  string
	RefreshJwt string

	// Endpoint, when set, is advertised as the account's PDS in the DID
	// document attached to createSession and refreshSession responses.
	Endpoint string

	mu       sync.Mutex
	records  map[string]json.RawMessage
	rkeySeq  int
	blobSeq  int
	tokenSeq int
	lastAuth string
	lastBody []byte
}

// New returns a server with a canned identity.
func New() *Server {
	return &Server{
		DID:        "did:plc:w4xbfzd7kqzqtestuser",
		Handle:     "alice.test",
		Password:   "app-password-1234",
		AccessJwt:  "access-jwt-1",
		RefreshJwt: "refresh-jwt-1",
		records:    make(map[string]json.RawMessage),
	}
}

// Handler returns the XRPC route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	// Patterns are "METHOD /path". Go 1.21's ServeMux predates method
	// patterns, so split them and enforce the method per handler, matching
	// the newer mux's 405-with-Allow behavior.
	handle := func(pattern string, h http.HandlerFunc) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != method {
				w.Header().Set("Allow", method)
				http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
				return
			}
			h(w, r)
		})
	}
	handle("POST /xrpc/com.atproto.server.createSession", s.handleCreateSession)
	handle("POST /xrpc/com.atproto.server.refreshSession", s.handleRefreshSession)
	handle("POST /xrpc/com.atproto.server.deleteSession", s.handleDeleteSession)
	handle("GET /xrpc/com.atproto.server.getSession", s.handleGetSession)
	handle("POST /xrpc/com.atproto.repo.createRecord", s.handleCreateRecord)
	handle("POST /xrpc/com.atproto.repo.putRecord", s.handlePutRecord)
	handle("POST /xrpc/com.atproto.repo.deleteRecord", s.handleDeleteRecord)
	handle("GET /xrpc/com.atproto.repo.getRecord", s.handleGetRecord)
	handle("GET /xrpc/com.atproto.repo.listRecords", s.handleListRecords)
	handle("GET /xrpc/com.atproto.repo.describeRepo", s.handleDescribeRepo)
	handle("POST /xrpc/com.atproto.repo.uploadBlob", s.handleUploadBlob)
	handle("GET /xrpc/com.atproto.identity.resolveHandle", s.handleResolveHandle)
	handle("GET /xrpc/app.bsky.feed.getTimeline", s.handleGetTimeline)
	handle("GET /xrpc/app.bsky.feed.getAuthorFeed", s.handleGetAuthorFeed)
	handle("GET /xrpc/app.bsky.feed.getPostThread", s.handleGetPostThread)
	handle("GET /xrpc/app.bsky.feed.getPosts", s.handleGetPosts)
	handle("GET /xrpc/app.bsky.feed.searchPosts", s.handleSearchPosts)
	handle("GET /xrpc/app.bsky.actor.getProfile", s.handleGetProfile)
	handle("GET /xrpc/app.bsky.actor.getProfiles", s.handleGetProfiles)
	return s.capture(mux)
}

// capture records the auth header and body of every request before routing.
func (s *Server) capture(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		s.mu.Lock()
		s.lastAuth = r.Header.Get("Authorization")
		s.lastBody = body
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// LastAuth returns the Authorization header of the most recent request.
func (s *Server) LastAuth() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth
}

// Tokens returns the currently valid access and refresh tokens. They rotate
// on every refreshSession call.
func (s *Server) Tokens() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AccessJwt, s.RefreshJwt
}

// LastBody returns the raw body of the most recent request.
func (s *Server) LastBody() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBody
}

// Record returns the stored record for collection/rkey.
func (s *Server) Record(collection, rkey string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[collection+"/"+rkey]
	return rec, ok
}

// AddRecord seeds a record for read tests.
func (s *Server) AddRecord(collection, rkey string, record json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[collection+"/"+rkey] = record
}

func (s *Server) hasAccess(r *http.Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.Header.Get("Authorization") == "Bearer "+s.AccessJwt
}

func (s *Server) hasRefresh(r *http.Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.Header.Get("Authorization") == "Bearer "+s.RefreshJwt
}

func (s *Server) didDoc() map[string]any {
	return map[string]any{
		"id": s.DID,
		"service": []map[string]any{
			{
				"id":              "#atproto_pds",
				"type":            "AtprotoPersonalDataServer",
				"serviceEndpoint": s.Endpoint,
			},
		},
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if (input.Identifier != s.Handle && input.Identifier != s.DID) || input.Password != s.Password {
		writeError(w, http.StatusUnauthorized, "AuthenticationRequired", "Invalid identifier or password")
		return
	}
	resp := map[string]any{
		"did":        s.DID,
		"handle":     s.Handle,
		"accessJwt":  s.AccessJwt,
		"refreshJwt": s.RefreshJwt,
	}
	if s.Endpoint != "" {
		resp["didDoc"] = s.didDoc()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefreshSession(w http.ResponseWriter, r *http.Request) {
	if !s.hasRefresh(r) {
		writeError(w, http.StatusBadRequest, "InvalidToken", "refresh token required")
		return
	}
	s.mu.Lock()
	s.tokenSeq++
	s.AccessJwt = fmt.Sprintf("access-jwt-%d", s.tokenSeq+1)
	s.RefreshJwt = fmt.Sprintf("refresh-jwt-%d", s.tokenSeq+1)
	access, refresh := s.AccessJwt, s.RefreshJwt
	s.mu.Unlock()
	resp := map[string]any{
		"did":        s.DID,
		"handle":     s.Handle,
		"accessJwt":  access,
		"refreshJwt": refresh,
	}
	if s.Endpoint != "" {
		resp["didDoc"] = s.didDoc()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.hasRefresh(r) {
		writeError(w, http.StatusBadRequest, "InvalidToken", "refresh token required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !s.hasAccess(r) {
		writeError(w, http.StatusUnauthorized, "AuthenticationRequired", "access token required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"did":    s.DID,
		"handle": s.Handle,
		"active": true,
	})
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	if !s.hasAccess(r) {
		writeError(w, http.StatusUnauthorized, "AuthenticationRequired", "access token required")
		return
	}
	var input struct {
		Repo       string          `json:"repo"`
		Collection string          `json:"collection"`
		RKey       string          `json:"rkey"`
		Record     json.RawMessage `json:"record"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if input.Collection == "" || len(input.Record) == 0 {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "collection and record are required")
		return
	}
	s.mu.Lock()
	rkey := input.RKey
	if rkey == "" {
		s.rkeySeq++
		rkey = fmt.Sprintf("rkey%d", s.rkeySeq)
	}
	s.records[input.Collection+"/"+rkey] = input.Record
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"uri": fmt.Sprintf("at://%s/%s/%s", input.Repo, input.Collection, rkey),
		"cid": fakeCID(rkey),
	})
}

func (s *Server) handlePutRecord(w http.ResponseWriter, r *http.Request) {
	if !s.hasAccess(r) {
		writeError(w, http.StatusUnauthorized, "AuthenticationRequired", "access token required")
		return
	}
	var input struct {
		Repo       string          `json:"repo"`
		Collection string          `json:"collection"`
		RKey       string          `json:"rkey"`
		Record     json.RawMessage `json:"record"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if input.Collection == "" || input.RKey == "" || len(input.Record) == 0 {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "collection, rkey and record are required")
		return
	}
	s.mu.Lock()
	s.records[input.Collection+"/"+input.RKey] = input.Record
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"uri": fmt.Sprintf("at://%s/%s/%s", input.Repo, input.Collection, input.RKey),
		"cid": fakeCID(input.RKey),
	})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if !s.hasAccess(r) {
		writeError(w, http.StatusUnauthorized, "AuthenticationRequired", "access token required")
		return
	}
	var input struct {
		Collection string `json:"collection"`
		RKey       string `json:"rkey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	s.mu.Lock()
	delete(s.records, input.Collection+"/"+input.RKey)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	collection := r.URL.Query().Get("collection")
	rkey := r.URL.Query().Get("rkey")
	repo := r.URL.Query().Get("repo")
	if repo == "" || collection == "" || rkey == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "repo, collection and rkey are required")
		return
	}
	rec, ok := s.Record(collection, rkey)
	if !ok {
		writeError(w, http.StatusBadRequest, "RecordNotFound", "Could not locate record")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"uri":   fmt.Sprintf("at://%s/%s/%s", repo, collection, rkey),
		"cid":   fakeCID(rkey),
		"value": rec,
	})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	collection := r.URL.Query().Get("collection")
	repo := r.URL.Query().Get("repo")
	if repo == "" || collection == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "repo and collection are required")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	type entry struct {
		rkey string
		val  json.RawMessage
	}
	s.mu.Lock()
	var entries []entry
	for key, val := range s.records {
		if c, rk, found := strings.Cut(key, "/"); found && c == collection {
			entries = append(entries, entry{rkey: rk, val: val})
		}
	}
	s.mu.Unlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].rkey > entries[j].rkey })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	records := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		records = append(records, map[string]any{
			"uri":   fmt.Sprintf("at://%s/%s/%s", repo, collection, e.rkey),
			"cid":   fakeCID(e.rkey),
			"value": e.val,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleDescribeRepo(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")
	if repo == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "repo is required")
		return
	}
	s.mu.Lock()
	collections := make(map[string]bool)
	for key := range s.records {
		if c, _, found := strings.Cut(key, "/"); found {
			collections[c] = true
		}
	}
	s.mu.Unlock()
	names := make([]string, 0, len(collections))
	for c := range collections {
		names = append(names, c)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]any{
		"handle":          s.Handle,
		"did":             s.DID,
		"collections":     names,
		"handleIsCorrect": true,
	})
}

func (s *Server) handleUploadBlob(w http.ResponseWriter, r *http.Request) {
	if !s.hasAccess(r) {
		writeError(w, http.StatusUnauthorized, "AuthenticationRequired", "access token required")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "unreadable body")
		return
	}
	s.mu.Lock()
	s.blobSeq++
	seq := s.blobSeq
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"blob": map[string]any{
			"$type":    "blob",
			"ref":      map[string]any{"$link": fmt.Sprintf("bafkblob%d", seq)},
			"mimeType": r.Header.Get("Content-Type"),
			"size":     len(body),
		},
	})
}

func (s *Server) handleResolveHandle(w http.ResponseWriter, r *http.Request) {
	handle := r.URL.Query().Get("handle")
	if handle != s.Handle {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Unable to resolve handle")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"did": s.DID})
}

func (s *Server) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	if !s.hasAccess(r) {
		writeError(w, http.StatusUnauthorized, "AuthenticationRequired", "access token required")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	feed := s.feedEntries(limit)
	writeJSON(w, http.StatusOK, map[string]any{"feed": feed})
}

func (s *Server) handleGetAuthorFeed(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor")
	if actor == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "actor is required")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	feed := s.feedEntries(limit)
	writeJSON(w, http.StatusOK, map[string]any{"feed": feed})
}

func (s *Server) handleGetPostThread(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "uri is required")
		return
	}
	rkey := uri[strings.LastIndex(uri, "/")+1:]
	rec, ok := s.Record("app.bsky.feed.post", rkey)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"thread": map[string]any{
				"$type":    "app.bsky.feed.defs#notFoundPost",
				"uri":      uri,
				"notFound": true,
			},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thread": map[string]any{
			"$type": "app.bsky.feed.defs#threadViewPost",
			"post":  s.postView(rkey, rec),
		},
	})
}

func (s *Server) handleGetPosts(w http.ResponseWriter, r *http.Request) {
	uris := r.URL.Query()["uris"]
	posts := make([]map[string]any, 0, len(uris))
	for _, uri := range uris {
		rkey := uri[strings.LastIndex(uri, "/")+1:]
		if rec, ok := s.Record("app.bsky.feed.post", rkey); ok {
			posts = append(posts, s.postView(rkey, rec))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (s *Server) handleSearchPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "q is required")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	var posts []map[string]any
	for _, e := range s.posts() {
		var record struct {
			Text string `json:"text"`
		}
		if json.Unmarshal(e.val, &record) == nil && strings.Contains(record.Text, q) {
			posts = append(posts, s.postView(e.rkey, e.val))
		}
		if len(posts) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts":     posts,
		"hitsTotal": len(posts),
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor")
	if actor != s.Handle && actor != s.DID {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Profile not found")
		return
	}
	writeJSON(w, http.StatusOK, s.profileView())
}

func (s *Server) handleGetProfiles(w http.ResponseWriter, r *http.Request) {
	actors := r.URL.Query()["actors"]
	profiles := make([]map[string]any, 0, len(actors))
	for _, actor := range actors {
		if actor == s.Handle || actor == s.DID {
			profiles = append(profiles, s.profileView())
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

func (s *Server) profileView() map[string]any {
	return map[string]any{
		"did":            s.DID,
		"handle":         s.Handle,
		"displayName":    "Alice Test",
		"description":    "test fixture account",
		"followersCount": 2,
		"followsCount":   3,
		"postsCount":     len(s.posts()),
		"indexedAt":      "2024-07-09T01:02:03.000Z",
	}
}

type storedPost struct {
	rkey string
	val  json.RawMessage
}

func (s *Server) posts() []storedPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storedPost
	for key, val := range s.records {
		if c, rk, found := strings.Cut(key, "/"); found && c == "app.bsky.feed.post" {
			out = append(out, storedPost{rkey: rk, val: val})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rkey > out[j].rkey })
	return out
}

func (s *Server) feedEntries(limit int) []map[string]any {
	posts := s.posts()
	if len(posts) > limit {
		posts = posts[:limit]
	}
	feed := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		feed = append(feed, map[string]any{"post": s.postView(p.rkey, p.val)})
	}
	return feed
}

func (s *Server) postView(rkey string, record json.RawMessage) map[string]any {
	return map[string]any{
		"uri": fmt.Sprintf("at://%s/app.bsky.feed.post/%s", s.DID, rkey),
		"cid": fakeCID(rkey),
		"author": map[string]any{
			"did":    s.DID,
			"handle": s.Handle,
		},
		"record":      record,
		"replyCount":  0,
		"repostCount": 0,
		"likeCount":   1,
		"indexedAt":   "2024-07-09T01:02:03.000Z",
	}
}

// parseLimit mirrors the server-side validation of the limit parameter:
// absent means the default, out-of-range is rejected.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 50, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > 100 {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "limit must be between 1 and 100")
		return 0, false
	}
	return limit, true
}

func fakeCID(rkey string) string {
	return "bafyreifake" + rkey
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
