package bands

import (
	"context"
	"sync"
	"testing"
	"time"

	"bandalloc/models"
	"bandalloc/pkg/apperr"
	"bandalloc/pkg/store/storetest"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return New(storetest.Open(t), decimal.NewFromInt(50))
}

func submission(user string, bands ...int64) Submission {
	return Submission{
		UserID:    user,
		Bands:     bands,
		Name:      "Asha",
		Zone:      "North",
		Community: "Riverside",
	}
}

func mustAllocate(t *testing.T, svc *Service, sub Submission) Allocation {
	t.Helper()
	out, err := svc.Allocate(context.Background(), sub)
	if err != nil {
		t.Fatalf("Allocate(%v): %v", sub.Bands, err)
	}
	return out
}

func bandsOf(entries []models.Entry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.BandNo
	}
	return out
}

func equalBands(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAllocateCreatesOneEntryPerBand(t *testing.T) {
	svc := newService(t)
	out := mustAllocate(t, svc, submission("user1", 3, 1, 2))

	if len(out.IDs) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(out.IDs))
	}
	if out.EntryGroupID == "" || out.ReplacedCount != 0 {
		t.Fatalf("unexpected allocation %+v", out)
	}
	entries, err := svc.List(context.Background(), ListQuery{UserID: "user1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := bandsOf(entries); !equalBands(got, []int64{1, 2, 3}) {
		t.Fatalf("expected bands [1 2 3], got %v", got)
	}
	for _, e := range entries {
		if e.EntryGroupID != out.EntryGroupID {
			t.Errorf("band %d has group %q, expected %q", e.BandNo, e.EntryGroupID, out.EntryGroupID)
		}
		if !e.Amount.Equal(decimal.NewFromInt(50)) {
			t.Errorf("band %d amount %s, expected default 50", e.BandNo, e.Amount)
		}
		if !e.CreatedAt.Equal(entries[0].CreatedAt) {
			t.Errorf("band %d created at %v, expected shared timestamp %v", e.BandNo, e.CreatedAt, entries[0].CreatedAt)
		}
		if e.Edited {
			t.Errorf("band %d unexpectedly marked edited", e.BandNo)
		}
	}
}

func TestAllocateUsesSuppliedAmountAndGroup(t *testing.T) {
	svc := newService(t)
	amount := decimal.RequireFromString("75.5")
	sub := submission("user1", 10)
	sub.AmountPerBand = &amount
	sub.EntryID = "client-group-1"
	out := mustAllocate(t, svc, sub)
	if out.EntryGroupID != "client-group-1" {
		t.Fatalf("expected client group id, got %q", out.EntryGroupID)
	}
	entries, _ := svc.List(context.Background(), ListQuery{UserID: "user1"})
	if len(entries) != 1 || !entries[0].Amount.Equal(amount) {
		t.Fatalf("expected one entry with amount 75.5, got %+v", entries)
	}
	if entries[0].Edited {
		t.Fatal("first submission of a client group must not be marked edited")
	}
}

func TestAllocateRejectsBandsHeldByOthers(t *testing.T) {
	svc := newService(t)
	mustAllocate(t, svc, submission("user1", 101))

	_, err := svc.Allocate(context.Background(), submission("user2", 100, 101, 102))
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	dups := apperr.DuplicatesOf(err)
	if len(dups) != 1 || dups[0].BandNo != 101 || dups[0].User != "user1" {
		t.Fatalf("expected duplicate {101 user1}, got %+v", dups)
	}
	entries, _ := svc.List(context.Background(), ListQuery{UserID: "user2"})
	if len(entries) != 0 {
		t.Fatalf("expected no partial insert for user2, got %v", bandsOf(entries))
	}
}

func TestAllocateReportsEveryDuplicate(t *testing.T) {
	svc := newService(t)
	mustAllocate(t, svc, submission("user1", 5))
	mustAllocate(t, svc, submission("user3", 8))

	_, err := svc.Allocate(context.Background(), submission("user2", 8, 6, 5))
	dups := apperr.DuplicatesOf(err)
	if len(dups) != 2 {
		t.Fatalf("expected 2 duplicates, got %+v", dups)
	}
	if dups[0].BandNo != 5 || dups[0].User != "user1" || dups[1].BandNo != 8 || dups[1].User != "user3" {
		t.Fatalf("unexpected duplicates %+v", dups)
	}
}

func TestAllocateEditInPlace(t *testing.T) {
	svc := newService(t)
	first := mustAllocate(t, svc, submission("user1", 5, 6))

	sub := submission("user1", 6, 7)
	sub.EntryID = first.EntryGroupID
	out := mustAllocate(t, svc, sub)
	if out.ReplacedCount != 2 {
		t.Fatalf("expected 2 replaced rows, got %d", out.ReplacedCount)
	}
	if out.EntryGroupID != first.EntryGroupID {
		t.Fatalf("expected group id to be kept, got %q", out.EntryGroupID)
	}
	entries, _ := svc.List(context.Background(), ListQuery{UserID: "user1"})
	if got := bandsOf(entries); !equalBands(got, []int64{6, 7}) {
		t.Fatalf("expected bands [6 7], got %v", got)
	}
	for _, e := range entries {
		if !e.Edited {
			t.Errorf("band %d should be marked edited", e.BandNo)
		}
	}
}

func TestAllocateEditRollsBackOnConflict(t *testing.T) {
	svc := newService(t)
	first := mustAllocate(t, svc, submission("user1", 5, 6))
	mustAllocate(t, svc, submission("user2", 9))

	sub := submission("user1", 6, 9)
	sub.EntryID = first.EntryGroupID
	_, err := svc.Allocate(context.Background(), sub)
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	entries, _ := svc.List(context.Background(), ListQuery{UserID: "user1"})
	if got := bandsOf(entries); !equalBands(got, []int64{5, 6}) {
		t.Fatalf("expected original group [5 6] to survive, got %v", got)
	}
}

func TestAllocateEditOnlyTouchesOwnGroup(t *testing.T) {
	svc := newService(t)
	other := mustAllocate(t, svc, submission("user2", 1))

	sub := submission("user1", 1)
	sub.EntryID = other.EntryGroupID
	if _, err := svc.Allocate(context.Background(), sub); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict when reusing another user's group id, got %v", err)
	}
}

func TestAllocateValidation(t *testing.T) {
	svc := newService(t)
	negative := decimal.NewFromInt(-1)
	cases := map[string]Submission{
		"no bands":       submission("user1"),
		"repeated band":  submission("user1", 4, 4),
		"zero band":      submission("user1", 0),
		"negative band":  submission("user1", -3),
		"blank name":     func() Submission { s := submission("user1", 1); s.Name = "  "; return s }(),
		"no zone":        func() Submission { s := submission("user1", 1); s.Zone = ""; return s }(),
		"no community":   func() Submission { s := submission("user1", 1); s.Community = ""; return s }(),
		"no user":        submission("", 1),
		"reserved user":  submission(AllUsers, 1),
		"negative money": func() Submission { s := submission("user1", 1); s.AmountPerBand = &negative; return s }(),
	}
	for name, sub := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Allocate(context.Background(), sub)
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAllocateConcurrentSameBand(t *testing.T) {
	svc := newService(t)
	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Allocate(context.Background(), submission("user"+string(rune('a'+i)), 42))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.KindOf(err) == apperr.KindConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if successes != 1 || conflicts != workers-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", workers-1, successes, conflicts)
	}
	entries, _ := svc.List(context.Background(), ListQuery{UserID: AllUsers})
	if len(entries) != 1 {
		t.Fatalf("expected exactly one holder of band 42, got %d", len(entries))
	}
}

func TestListSortAndScope(t *testing.T) {
	svc := newService(t)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	svc.now = func() time.Time { return clock }

	mustAllocate(t, svc, submission("user1", 10, 20))
	clock = base.Add(time.Minute)
	mustAllocate(t, svc, submission("user1", 30))
	clock = base.Add(2 * time.Minute)
	mustAllocate(t, svc, submission("user2", 5))

	ctx := context.Background()
	byBand, err := svc.List(ctx, ListQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := bandsOf(byBand); !equalBands(got, []int64{10, 20, 30}) {
		t.Fatalf("default listing should be user1 by band, got %v", got)
	}

	recent, err := svc.List(ctx, ListQuery{UserID: "user1", Sort: SortRecent})
	if err != nil {
		t.Fatalf("List recent: %v", err)
	}
	if got := bandsOf(recent); !equalBands(got, []int64{30, 10, 20}) {
		t.Fatalf("recent listing should put the newest group first, got %v", got)
	}

	all, err := svc.List(ctx, ListQuery{UserID: AllUsers, Sort: "createdAt"})
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if got := bandsOf(all); !equalBands(got, []int64{5, 30, 10, 20}) {
		t.Fatalf("unexpected all listing %v", got)
	}

	if _, err := svc.List(ctx, ListQuery{Sort: "name"}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for unknown sort, got %v", err)
	}

	empty, err := svc.List(ctx, ListQuery{UserID: "nobody"})
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil listing, got %v %v", empty, err)
	}
}

func ptr[T any](v T) *T { return &v }

func TestUpdate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	mustAllocate(t, svc, submission("user1", 1, 2))
	mustAllocate(t, svc, submission("user2", 3))
	entries, _ := svc.List(ctx, ListQuery{UserID: "user1"})
	id := entries[0].ID

	n, err := svc.Update(ctx, Update{ID: id, NewBandNo: ptr(int64(11)), Name: ptr("Ravi"), Amount: ptr(decimal.NewFromInt(60))})
	if err != nil || n != 1 {
		t.Fatalf("Update: n=%d err=%v", n, err)
	}
	entries, _ = svc.List(ctx, ListQuery{UserID: "user1"})
	if got := bandsOf(entries); !equalBands(got, []int64{2, 11}) {
		t.Fatalf("expected bands [2 11], got %v", got)
	}
	if entries[1].Name != "Ravi" || !entries[1].Amount.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("fields not applied: %+v", entries[1])
	}
	if entries[1].Zone != "North" {
		t.Fatalf("untouched field changed: %+v", entries[1])
	}

	// same band number again is not a conflict
	if _, err := svc.Update(ctx, Update{ID: id, NewBandNo: ptr(int64(11))}); err != nil {
		t.Fatalf("same-value update: %v", err)
	}

	_, err = svc.Update(ctx, Update{ID: id, NewBandNo: ptr(int64(3))})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if dups := apperr.DuplicatesOf(err); len(dups) != 1 || dups[0].User != "user2" {
		t.Fatalf("expected holder user2, got %+v", dups)
	}

	if _, err := svc.Update(ctx, Update{ID: "missing", Name: ptr("x")}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Update(ctx, Update{ID: id}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for empty update, got %v", err)
	}
	if _, err := svc.Update(ctx, Update{Name: ptr("x")}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for missing id, got %v", err)
	}
	if _, err := svc.Update(ctx, Update{ID: id, Zone: ptr(" ")}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for blank zone, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	mustAllocate(t, svc, submission("user1", 1, 2, 3))
	mustAllocate(t, svc, submission("user2", 4, 5))
	entries, _ := svc.List(ctx, ListQuery{UserID: "user1"})

	if n, err := svc.Delete(ctx, DeleteQuery{ID: entries[0].ID}); err != nil || n != 1 {
		t.Fatalf("delete by id: n=%d err=%v", n, err)
	}
	if _, err := svc.Delete(ctx, DeleteQuery{ID: entries[0].ID}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found for second delete, got %v", err)
	}

	// bandNo scoped to another user matches nothing
	if n, err := svc.Delete(ctx, DeleteQuery{BandNo: "2", UserID: "user2"}); err != nil || n != 0 {
		t.Fatalf("scoped delete: n=%d err=%v", n, err)
	}
	if n, err := svc.Delete(ctx, DeleteQuery{BandNo: "2", UserID: "user1"}); err != nil || n != 1 {
		t.Fatalf("delete by band: n=%d err=%v", n, err)
	}
	if n, err := svc.Delete(ctx, DeleteQuery{BandNo: "4", UserID: AllUsers}); err != nil || n != 1 {
		t.Fatalf("delete by band for all: n=%d err=%v", n, err)
	}
	if _, err := svc.Delete(ctx, DeleteQuery{BandNo: "four"}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for non-integer band, got %v", err)
	}
	if _, err := svc.Delete(ctx, DeleteQuery{UserID: "user1"}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error without selector, got %v", err)
	}

	n, err := svc.Delete(ctx, DeleteQuery{UserID: AllUsers})
	if err != nil || n != 2 {
		t.Fatalf("delete all: n=%d err=%v", n, err)
	}
	rest, _ := svc.List(ctx, ListQuery{UserID: AllUsers})
	if len(rest) != 0 {
		t.Fatalf("expected empty table, got %v", bandsOf(rest))
	}
}

func TestDeletedBandCanBeReallocated(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	mustAllocate(t, svc, submission("user1", 77))
	if _, err := svc.DeleteByBand(ctx, 77, ""); err != nil {
		t.Fatalf("DeleteByBand: %v", err)
	}
	if _, err := svc.Allocate(ctx, submission("user2", 77)); err != nil {
		t.Fatalf("reallocate freed band: %v", err)
	}
}

func TestFindByBand(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	mustAllocate(t, svc, submission("user1", 15))
	e, err := svc.FindByBand(ctx, 15)
	if err != nil || e.UserID != "user1" {
		t.Fatalf("FindByBand: %+v %v", e, err)
	}
	if _, err := svc.FindByBand(ctx, 16); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	mustAllocate(t, svc, submission("user1", 1, 2))
	south := submission("user1", 3)
	south.Zone = "South"
	south.AmountPerBand = ptr(decimal.NewFromInt(20))
	mustAllocate(t, svc, south)
	mustAllocate(t, svc, submission("user2", 4))

	sum, err := svc.Summary(ctx, "user1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Count != 3 || !sum.TotalAmount.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("unexpected totals %+v", sum)
	}
	if len(sum.Zones) != 2 || sum.Zones[0].Zone != "North" || sum.Zones[0].Count != 2 || sum.Zones[1].Zone != "South" {
		t.Fatalf("unexpected zones %+v", sum.Zones)
	}

	all, err := svc.Summary(ctx, "")
	if err != nil {
		t.Fatalf("Summary all: %v", err)
	}
	if all.UserID != AllUsers || all.Count != 4 || !all.TotalAmount.Equal(decimal.NewFromInt(170)) {
		t.Fatalf("unexpected totals for all %+v", all)
	}
}

func TestTakenConflictWithoutHolders(t *testing.T) {
	svc := newService(t)
	err := svc.takenConflict(context.Background(), []int64{900})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(apperr.DuplicatesOf(err)) != 0 {
		t.Fatalf("expected plain conflict, got %+v", apperr.DuplicatesOf(err))
	}
}

// takeBandInside registers a callback that, the first time it runs for the
// entries table, inserts rival inside the caller's transaction. The holder
// lookup has already passed by then, so only the unique index catches it.
func takeBandInside(t *testing.T, rival models.Entry) func(*gorm.DB) {
	t.Helper()
	fired := false
	t.Cleanup(func() {
		if !fired {
			t.Error("rival insert never ran")
		}
	})
	return func(tx *gorm.DB) {
		if fired || tx.Statement.Table != models.EntriesTable {
			return
		}
		fired = true
		if err := tx.Session(&gorm.Session{NewDB: true}).Create(&rival).Error; err != nil {
			tx.AddError(err)
		}
	}
}

func rival(user string, band int64) models.Entry {
	return models.Entry{BandNo: band, Name: "Rival", Zone: "East", Community: "Dock", Amount: decimal.NewFromInt(50), UserID: user}
}

func TestAllocateUniqueIndexConflict(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	hook := takeBandInside(t, rival("bob", 42))
	if err := svc.db.Callback().Create().Before("gorm:create").Register("bands_test:take_band", hook); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	_, err := svc.Allocate(ctx, submission("alice", 41, 42))
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	// the rival row was rolled back with the losing transaction
	if dups := apperr.DuplicatesOf(err); len(dups) != 0 {
		t.Fatalf("expected no holders to report, got %+v", dups)
	}
	entries, err := svc.List(ctx, ListQuery{UserID: AllUsers})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no rows after the failed allocation, got %v", bandsOf(entries))
	}
}

func TestUpdateUniqueIndexConflict(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	mustAllocate(t, svc, submission("user1", 1))
	entries, _ := svc.List(ctx, ListQuery{UserID: "user1"})

	hook := takeBandInside(t, rival("bob", 7))
	if err := svc.db.Callback().Update().Before("gorm:update").Register("bands_test:take_band", hook); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	_, err := svc.Update(ctx, Update{ID: entries[0].ID, NewBandNo: ptr(int64(7))})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if dups := apperr.DuplicatesOf(err); len(dups) != 0 {
		t.Fatalf("expected no holder without a committed row, got %+v", dups)
	}
	all, _ := svc.List(ctx, ListQuery{UserID: AllUsers})
	if got := bandsOf(all); !equalBands(got, []int64{1}) {
		t.Fatalf("expected only the untouched band 1, got %v", got)
	}
}

func TestBandTakenNamesCommittedHolder(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	mustAllocate(t, svc, submission("user2", 3))

	dups := apperr.DuplicatesOf(svc.bandTaken(ctx, 3))
	if len(dups) != 1 || dups[0].BandNo != 3 || dups[0].User != "user2" {
		t.Fatalf("expected holder {3 user2}, got %+v", dups)
	}
	err := svc.bandTaken(ctx, 99)
	if apperr.KindOf(err) != apperr.KindConflict || len(apperr.DuplicatesOf(err)) != 0 {
		t.Fatalf("expected plain conflict for a free band, got %v %+v", err, apperr.DuplicatesOf(err))
	}
}

func TestIsReserved(t *testing.T) {
	if !IsReserved(AllUsers) || !IsReserved(" all ") {
		t.Fatal("the all selector must be reserved")
	}
	if IsReserved("alice") || IsReserved("All") {
		t.Fatal("ordinary names must not be reserved")
	}
}
