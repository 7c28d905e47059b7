package report

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artifact-compiler/internal/common/errors"
	"artifact-compiler/internal/models"
)

// fakeES is a tiny in-memory stand-in for the document and search APIs the
// sink uses.
type fakeES struct {
	mu            sync.Mutex
	indexCreated  bool
	docs          map[string]json.RawMessage
	seq           map[string]int
	conflictsLeft int
}

func newFakeES() *fakeES {
	return &fakeES{docs: map[string]json.RawMessage{}, seq: map[string]int{}}
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case r.URL.Path == "/":
		io.WriteString(w, `{"version": {"number": "8.11.0"}, "tagline": "You Know, for Search"}`)
	case len(parts) == 1 && r.Method == http.MethodHead:
		if !f.indexCreated {
			w.WriteHeader(http.StatusNotFound)
		}
	case len(parts) == 1 && r.Method == http.MethodPut:
		f.indexCreated = true
		io.WriteString(w, `{"acknowledged": true}`)
	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodGet:
		f.get(w, parts[2])
	case len(parts) == 3 && (parts[1] == "_doc" || parts[1] == "_create"):
		f.index(w, r, parts[2], parts[1] == "_create")
	case len(parts) == 2 && parts[1] == "_search":
		f.search(w, r)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeES) get(w http.ResponseWriter, id string) {
	doc, ok := f.docs[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"found": false}`)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"_id":           id,
		"found":         true,
		"_seq_no":       f.seq[id],
		"_primary_term": 1,
		"_source":       doc,
	})
}

func (f *fakeES) index(w http.ResponseWriter, r *http.Request, id string, create bool) {
	body, _ := io.ReadAll(r.Body)
	q := r.URL.Query()

	_, exists := f.docs[id]
	if (create || q.Get("op_type") == "create") && exists {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error": {"type": "version_conflict_engine_exception"}}`)
		return
	}
	if s := q.Get("if_seq_no"); s != "" {
		want, _ := strconv.Atoi(s)
		if f.conflictsLeft > 0 {
			// another writer got there first
			f.conflictsLeft--
			f.seq[id]++
		}
		if want != f.seq[id] {
			w.WriteHeader(http.StatusConflict)
			io.WriteString(w, `{"error": {"type": "version_conflict_engine_exception"}}`)
			return
		}
	}

	f.docs[id] = body
	f.seq[id]++
	w.WriteHeader(http.StatusCreated)
	io.WriteString(w, `{"result": "created"}`)
}

func (f *fakeES) search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Size  int `json:"size"`
		Query struct {
			Bool struct {
				Filter []map[string]map[string]string `json:"filter"`
			} `json:"bool"`
		} `json:"query"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	var hits []models.FailureReport
	for _, raw := range f.docs {
		var rep models.FailureReport
		json.Unmarshal(raw, &rep)
		keep := true
		for _, clause := range req.Query.Bool.Filter {
			for field, want := range clause["term"] {
				switch field {
				case "status":
					keep = keep && string(rep.Status) == want
				case "phase":
					keep = keep && rep.Phase == want
				}
			}
		}
		if keep {
			hits = append(hits, rep)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].CreatedAt.After(hits[j].CreatedAt) })
	if req.Size > 0 && len(hits) > req.Size {
		hits = hits[:req.Size]
	}

	out := make([]map[string]interface{}, len(hits))
	for i := range hits {
		out[i] = map[string]interface{}{"_source": hits[i]}
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"hits": map[string]interface{}{"hits": out},
	})
}

func createTestElasticsearchSink(t *testing.T) (*ElasticsearchSink, *fakeES) {
	fake := newFakeES()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewElasticsearchSink(client, ""), fake
}

func TestElasticsearchSink_EnsureIndex(t *testing.T) {
	sink, fake := createTestElasticsearchSink(t)

	require.NoError(t, sink.EnsureIndex(context.Background()))
	assert.True(t, fake.indexCreated)

	// second call sees the existing index
	require.NoError(t, sink.EnsureIndex(context.Background()))
}

func TestElasticsearchSink_SaveGetResolve(t *testing.T) {
	sink, _ := createTestElasticsearchSink(t)
	ctx := context.Background()

	rep := Build(errors.NewCodeInOutputError("components[0].desc", "def run():\n    pass"), createTestInput(), fixedNow)
	require.NoError(t, sink.Save(ctx, rep))
	assert.ErrorIs(t, sink.Save(ctx, rep), ErrDuplicateReport)

	got, err := sink.Get(ctx, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.ErrorKind, got.ErrorKind)
	assert.Equal(t, "components[0].desc", got.Details["location"])

	_, err = sink.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrReportNotFound)

	at := fixedNow.Add(time.Hour)
	out, err := sink.Resolve(ctx, rep.ID, "removed code sample", at)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusResolved, out.Status)

	got, err = sink.Get(ctx, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, "removed code sample", got.Resolution)

	_, err = sink.Resolve(ctx, rep.ID, "again", at)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestElasticsearchSink_ResolveRetriesOnConflict(t *testing.T) {
	sink, fake := createTestElasticsearchSink(t)
	ctx := context.Background()

	rep := Build(errors.NewNoJSONFoundError(), createTestInput(), fixedNow)
	require.NoError(t, sink.Save(ctx, rep))

	fake.conflictsLeft = 2
	out, err := sink.Resolve(ctx, rep.ID, "prompt tightened", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "prompt tightened", out.Resolution)
	assert.Zero(t, fake.conflictsLeft)
}

func TestElasticsearchSink_ResolveGivesUpAfterRepeatedConflicts(t *testing.T) {
	sink, fake := createTestElasticsearchSink(t)
	ctx := context.Background()

	rep := Build(errors.NewNoJSONFoundError(), createTestInput(), fixedNow)
	require.NoError(t, sink.Save(ctx, rep))

	fake.conflictsLeft = maxResolveAttempts
	_, err := sink.Resolve(ctx, rep.ID, "prompt tightened", fixedNow)
	assert.ErrorContains(t, err, "too many concurrent updates")
}

func TestElasticsearchSink_List(t *testing.T) {
	sink, _ := createTestElasticsearchSink(t)
	ctx := context.Background()

	older := Build(errors.NewNoJSONFoundError(), createTestInput(), fixedNow)
	newer := Build(errors.NewEmptyResponseError(), createTestInput(), fixedNow.Add(time.Minute))
	other := Build(errors.NewEmptyResponseError(), Input{Phase: "design"}, fixedNow.Add(2*time.Minute))
	for _, r := range []*models.FailureReport{older, newer, other} {
		require.NoError(t, sink.Save(ctx, r))
	}

	got, err := sink.List(ctx, ListFilter{Phase: "planning", Status: models.ReportStatusOpen})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, older.ID, got[1].ID)

	got, err = sink.List(ctx, ListFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, other.ID, got[0].ID)
}
