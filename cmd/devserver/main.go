// Command devserver runs an in-memory imitation of the field-service API:
// enough of the replication, mutation and attachment endpoints to exercise a
// client against without a backend deployment. State lives in process memory
// and is lost on restart.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/provio/fieldsync/internal/logger"
	"github.com/provio/fieldsync/models"
)

func main() {
	addr := flag.String("a", ":8080", "listen address")
	token := flag.String("t", "", "required bearer token; empty accepts any")
	flag.Parse()

	log := logger.New("devserver")
	srv := newDevServer(*token, log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(srv.auth)

	for _, name := range []string{"work-order-types", "checklist-answers", "signatures", "work-order-notes"} {
		table := srv.table(name)
		r.Get("/api/sync/"+name, table.handlePull)
		r.Post("/api/"+name, table.handlePush)
	}
	r.Post("/api/attachments", srv.handleUpload)

	log.Info().Str("addr", *addr).Msg("devserver listening")
	if err := http.ListenAndServe(*addr, r); err != nil {
		log.Fatal().Err(err).Msg("devserver stopped")
	}
}

type devServer struct {
	token  string
	logger *logger.Logger

	mu     sync.Mutex
	tables map[string]*memTable
	nextID int
}

func newDevServer(token string, log *logger.Logger) *devServer {
	return &devServer{
		token:  token,
		logger: log,
		tables: make(map[string]*memTable),
		nextID: 1,
	}
}

func (s *devServer) table(name string) *memTable {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[name]
	if !ok {
		t = &memTable{name: name, server: s, byLocalID: make(map[string]int)}
		s.tables[name] = t
	}
	return t
}

func (s *devServer) assignID(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := fmt.Sprintf("%s-%04d", prefix, s.nextID)
	s.nextID++
	return id
}

func (s *devServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		bearer := strings.TrimPrefix(header, "Bearer ")
		if bearer == header || bearer == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if s.token != "" && bearer != s.token {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *devServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "malformed multipart body", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file part is required", http.StatusUnprocessableEntity)
		return
	}
	defer file.Close()

	id := s.assignID("att")
	s.logger.Info().
		Str("attachment_id", id).
		Str("entity", r.FormValue("entity")).
		Str("local_id", r.FormValue("localId")).
		Str("file", header.Filename).
		Msg("attachment received")

	writeJSON(w, models.AttachmentRef{
		AttachmentID: id,
		URL:          "/files/" + id + "/" + header.Filename,
	})
}

// memTable is one entity collection with localId-keyed idempotency.
type memTable struct {
	name   string
	server *devServer

	mu        sync.Mutex
	records   []memRecord
	byLocalID map[string]int
}

type memRecord struct {
	id        string
	localID   string
	updatedAt time.Time
	payload   map[string]any
}

func (t *memTable) handlePull(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("updatedSince"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			http.Error(w, "invalid updatedSince", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	t.mu.Lock()
	changed := make([]memRecord, 0, len(t.records))
	for _, rec := range t.records {
		if rec.updatedAt.After(since) {
			changed = append(changed, rec)
		}
	}
	t.mu.Unlock()

	sortByUpdatedAt(changed)
	hasMore := len(changed) > limit
	if hasMore {
		changed = changed[:limit]
	}

	page := models.PullResponse{
		Items:      make([]json.RawMessage, 0, len(changed)),
		HasMore:    hasMore,
		ServerTime: time.Now().UTC(),
	}
	for _, rec := range changed {
		raw, err := json.Marshal(rec.payload)
		if err != nil {
			continue
		}
		page.Items = append(page.Items, raw)
	}
	if len(changed) > 0 {
		last := changed[len(changed)-1].updatedAt
		page.NextCursor = &last
	}

	writeJSON(w, page)
}

func (t *memTable) handlePush(w http.ResponseWriter, r *http.Request) {
	var req models.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed push body", http.StatusBadRequest)
		return
	}

	resp := models.PushResponse{Results: make([]models.PushItemResult, 0, len(req.Items))}

	t.mu.Lock()
	for _, item := range req.Items {
		localID, _ := item["localId"].(string)
		if localID == "" {
			resp.Results = append(resp.Results, models.PushItemResult{
				Status: models.PushStatusError,
				Error:  "localId is required",
			})
			continue
		}

		if idx, exists := t.byLocalID[localID]; exists {
			resp.Results = append(resp.Results, models.PushItemResult{
				LocalID: localID,
				ID:      t.records[idx].id,
				Status:  models.PushStatusDuplicate,
			})
			continue
		}

		if reason := validatePayload(item); reason != "" {
			resp.Results = append(resp.Results, models.PushItemResult{
				LocalID: localID,
				Status:  models.PushStatusError,
				Error:   reason,
			})
			continue
		}

		now := time.Now().UTC()
		id := t.server.assignID("srv")
		payload := make(map[string]any, len(item)+2)
		for k, v := range item {
			payload[k] = v
		}
		payload["id"] = id
		payload["updatedAt"] = now.Format(time.RFC3339Nano)

		t.byLocalID[localID] = len(t.records)
		t.records = append(t.records, memRecord{id: id, localID: localID, updatedAt: now, payload: payload})
		resp.Results = append(resp.Results, models.PushItemResult{LocalID: localID, ID: id, Status: models.PushStatusOK})
	}
	t.mu.Unlock()

	writeJSON(w, resp)
}

// validatePayload rejects obviously broken mutations the way the real API
// would, so client-side FAILED handling can be exercised locally.
func validatePayload(item models.PushItem) string {
	for key, value := range item {
		if s, ok := value.(string); ok && strings.EqualFold(s, "invalid") {
			return "field " + key + " failed validation"
		}
	}
	return ""
}

func sortByUpdatedAt(records []memRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].updatedAt.Before(records[j].updatedAt)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
