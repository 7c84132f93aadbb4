package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
	"github.com/alanyoungcy/atomicnexus/internal/store/memory"
)

type fakeBucket struct {
	objects map[string][]byte
	putErr  error
	short   bool
}

func newFakeBucket() *fakeBucket { return &fakeBucket{objects: map[string][]byte{}} }

func (b *fakeBucket) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if b.putErr != nil {
		return b.putErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.objects[path] = raw
	return nil
}

func (b *fakeBucket) Stat(_ context.Context, path string) (int64, error) {
	raw, ok := b.objects[path]
	if !ok {
		return 0, ErrObjectNotFound
	}
	if b.short {
		return int64(len(raw)) - 1, nil
	}
	return int64(len(raw)), nil
}

var base = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func seedCandidates(t *testing.T, s *memory.CandidateStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.Insert(context.Background(), domain.Candidate{
			ID:        string(rune('a' + i)),
			Direction: domain.DirectionUniToSushi,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
}

func newTestArchiver(bucket *fakeBucket, cands *memory.CandidateStore, plans *memory.PlanStore, maxRows int) *ArchiveImpl {
	a := NewArchiver(bucket, cands, plans, ArchiverConfig{MaxRows: maxRows, Stat: bucket},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return base.Add(48 * time.Hour) }
	return a
}

func TestArchivePath(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	assert.Equal(t, "archive/plans/2026/01/02/1767319445.jsonl", archivePath("plans", at))
}

func TestArchiveCandidates(t *testing.T) {
	bucket := newFakeBucket()
	cands := memory.NewCandidateStore()
	seedCandidates(t, cands, 4)
	a := newTestArchiver(bucket, cands, memory.NewPlanStore(), 0)

	n, err := a.ArchiveCandidates(context.Background(), base.Add(150*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	raw, ok := bucket.objects[archivePath("candidates", base.Add(48*time.Hour))]
	require.True(t, ok)
	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		var c domain.Candidate
		require.NoError(t, json.Unmarshal(sc.Bytes(), &c))
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	left, err := cands.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "d", left[0].ID)
}

func TestArchiveCandidates_RowCap(t *testing.T) {
	bucket := newFakeBucket()
	cands := memory.NewCandidateStore()
	seedCandidates(t, cands, 4)
	a := newTestArchiver(bucket, cands, memory.NewPlanStore(), 2)
	ctx := context.Background()

	n, err := a.ArchiveCandidates(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "exactly the uploaded rows are deleted")

	left, err := cands.ListBefore(ctx, base.Add(24*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "c", left[0].ID)
	assert.Equal(t, "d", left[1].ID)
}

func TestArchiveCandidates_SharedTimestampMakesProgress(t *testing.T) {
	cands := memory.NewCandidateStore()
	ctx := context.Background()
	for _, id := range []string{"x", "y", "z"} {
		require.NoError(t, cands.Insert(ctx, domain.Candidate{ID: id, CreatedAt: base}))
	}
	cutoff := base.Add(time.Hour)

	var archived []string
	for run := 0; run < 2; run++ {
		bucket := newFakeBucket()
		a := newTestArchiver(bucket, cands, memory.NewPlanStore(), 2)
		a.now = func() time.Time { return base.Add(time.Duration(run+48) * time.Hour) }

		_, err := a.ArchiveCandidates(ctx, cutoff)
		require.NoError(t, err)
		for _, raw := range bucket.objects {
			sc := bufio.NewScanner(bytes.NewReader(raw))
			for sc.Scan() {
				var c domain.Candidate
				require.NoError(t, json.Unmarshal(sc.Bytes(), &c))
				archived = append(archived, c.ID)
			}
		}
	}

	assert.Equal(t, []string{"x", "y", "z"}, archived, "each row archived once")
	left, err := cands.ListBefore(ctx, cutoff, 0)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestArchiveCandidates_NothingToDo(t *testing.T) {
	bucket := newFakeBucket()
	a := newTestArchiver(bucket, memory.NewCandidateStore(), memory.NewPlanStore(), 0)

	n, err := a.ArchiveCandidates(context.Background(), base)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, bucket.objects)
}

func TestArchive_UploadFailureKeepsRows(t *testing.T) {
	bucket := newFakeBucket()
	bucket.putErr = errors.New("bucket down")
	cands := memory.NewCandidateStore()
	seedCandidates(t, cands, 2)
	a := newTestArchiver(bucket, cands, memory.NewPlanStore(), 0)

	_, err := a.ArchiveCandidates(context.Background(), base.Add(24*time.Hour))
	require.Error(t, err)

	left, err := cands.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestArchive_VerifyMismatchKeepsRows(t *testing.T) {
	bucket := newFakeBucket()
	bucket.short = true
	cands := memory.NewCandidateStore()
	seedCandidates(t, cands, 2)
	a := newTestArchiver(bucket, cands, memory.NewPlanStore(), 0)

	_, err := a.ArchiveCandidates(context.Background(), base.Add(24*time.Hour))
	require.ErrorContains(t, err, "verify")

	left, err := cands.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestArchivePlans(t *testing.T) {
	bucket := newFakeBucket()
	plans := memory.NewPlanStore()
	require.NoError(t, plans.Insert(context.Background(), domain.Plan{
		ID:                "p1",
		AmountIn:          big.NewInt(93_409_407_184),
		ExpectedAmountOut: big.NewInt(96_407_664_354),
		Constraints:       domain.PlanConstraints{MinAmountOut: big.NewInt(95_925_626_032)},
		CreatedAt:         base,
	}))
	a := newTestArchiver(bucket, memory.NewCandidateStore(), plans, 0)

	n, err := a.ArchivePlans(context.Background(), base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	raw := bucket.objects[archivePath("plans", base.Add(48*time.Hour))]
	assert.Contains(t, string(raw), `"93409407184"`)
}
