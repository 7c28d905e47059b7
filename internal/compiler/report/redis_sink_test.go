package report

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artifact-compiler/internal/common/errors"
	"artifact-compiler/internal/models"
)

func createTestRedisSink(t *testing.T, ttl time.Duration) (*RedisSink, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSink(client, "", ttl), mr
}

func TestRedisSink_SaveGetResolve(t *testing.T) {
	sink, mr := createTestRedisSink(t, 24*time.Hour)
	ctx := context.Background()

	rep := Build(errors.NewSchemaViolationError("configs/schemas/project_plan.schema.json", []string{"milestones: is required"}), createTestInput(), fixedNow)
	require.NoError(t, sink.Save(ctx, rep))
	assert.ErrorIs(t, sink.Save(ctx, rep), ErrDuplicateReport)

	assert.True(t, mr.Exists("failure_report:"+rep.ID))
	assert.Equal(t, 24*time.Hour, mr.TTL("failure_report:"+rep.ID))

	got, err := sink.Get(ctx, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.Summary, got.Summary)
	assert.Equal(t, models.ReportStatusOpen, got.Status)

	at := fixedNow.Add(time.Hour)
	resolvedRep, err := sink.Resolve(ctx, rep.ID, "schema relaxed", at)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusResolved, resolvedRep.Status)

	got, err = sink.Get(ctx, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, "schema relaxed", got.Resolution)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, at.Equal(*got.ResolvedAt))
	assert.Equal(t, 24*time.Hour, mr.TTL("failure_report:"+rep.ID), "resolve keeps ttl")

	_, err = sink.Resolve(ctx, rep.ID, "again", at)
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	_, err = sink.Resolve(ctx, "missing", "text", at)
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestRedisSink_SaveIsOneTransaction(t *testing.T) {
	db, mock := redismock.NewClientMock()
	sink := NewRedisSink(db, "reports:", time.Hour)
	ctx := context.Background()

	rep := Build(errors.NewMissingInformationError("Budget undefined"), createTestInput(), fixedNow)
	data, err := json.Marshal(rep)
	require.NoError(t, err)
	member := redis.Z{Score: float64(rep.CreatedAt.UnixNano()), Member: rep.ID}

	mock.ExpectTxPipeline()
	mock.ExpectSetNX("reports:"+rep.ID, data, time.Hour).SetVal(true)
	mock.ExpectZAddNX("reports:index", member).SetVal(1)
	mock.ExpectTxPipelineExec()
	require.NoError(t, sink.Save(ctx, rep))

	mock.ExpectTxPipeline()
	mock.ExpectSetNX("reports:"+rep.ID, data, time.Hour).SetVal(false)
	mock.ExpectZAddNX("reports:index", member).SetVal(0)
	mock.ExpectTxPipelineExec()
	assert.ErrorIs(t, sink.Save(ctx, rep), ErrDuplicateReport)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSink_DuplicateKeepsIndexScore(t *testing.T) {
	sink, mr := createTestRedisSink(t, 0)
	ctx := context.Background()

	rep := Build(errors.NewMissingInformationError("Budget undefined"), createTestInput(), fixedNow)
	require.NoError(t, sink.Save(ctx, rep))

	later := *rep
	later.CreatedAt = fixedNow.Add(time.Hour)
	assert.ErrorIs(t, sink.Save(ctx, &later), ErrDuplicateReport)

	score, err := mr.ZScore("failure_report:index", rep.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(fixedNow.UnixNano()), score)

	members, err := mr.ZMembers("failure_report:index")
	require.NoError(t, err)
	assert.Equal(t, []string{rep.ID}, members)
}

func TestRedisSink_List(t *testing.T) {
	sink, mr := createTestRedisSink(t, 0)
	ctx := context.Background()

	first := Build(errors.NewNoJSONFoundError(), createTestInput(), fixedNow)
	second := Build(errors.NewEmptyResponseError(), Input{Phase: "design"}, fixedNow.Add(time.Minute))
	third := Build(errors.NewInvalidJSONError(stderrors.New("unexpected end")), createTestInput(), fixedNow.Add(2*time.Minute))
	for _, r := range []*models.FailureReport{first, second, third} {
		require.NoError(t, sink.Save(ctx, r))
	}

	all, err := sink.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	planning, err := sink.List(ctx, ListFilter{Phase: "planning", Limit: 1})
	require.NoError(t, err)
	require.Len(t, planning, 1)
	assert.Equal(t, third.ID, planning[0].ID)

	// an evicted report drops out of the listing
	mr.Del("failure_report:" + third.ID)
	all, err = sink.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRedisSink_ListEmpty(t *testing.T) {
	sink, _ := createTestRedisSink(t, 0)

	got, err := sink.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisSink_Errors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	sink := NewRedisSink(db, "reports:", 0)
	ctx := context.Background()

	mock.ExpectGet("reports:gone").RedisNil()
	_, err := sink.Get(ctx, "gone")
	assert.ErrorIs(t, err, ErrReportNotFound)

	mock.ExpectGet("reports:broken").SetErr(stderrors.New("connection reset"))
	_, err = sink.Get(ctx, "broken")
	assert.ErrorContains(t, err, "connection reset")

	mock.ExpectGet("reports:garbled").SetVal("{not json")
	_, err = sink.Get(ctx, "garbled")
	assert.ErrorContains(t, err, "decode failure report")

	assert.NoError(t, mock.ExpectationsWereMet())
}
