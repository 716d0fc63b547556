package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fidde/kodama/pkg/query"
)

type report struct {
	record  string
	groupBy string
	failed  bool
}

type captureReporter struct {
	mu      sync.Mutex
	reports []report
}

func (c *captureReporter) RecordWithError(record, groupBy string, _ uint64, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, report{record: record, groupBy: groupBy, failed: failed})
}

func (c *captureReporter) all() []report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]report(nil), c.reports...)
}

const itemsSchema = `CREATE TABLE items (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    amount
)`

func openTest(t *testing.T, opts ...Option) *DB {
	t.Helper()
	opts = append([]Option{WithMigration("001_items", itemsSchema)}, opts...)
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func scanInt(s Scanner) (int64, error) {
	var v int64
	err := s.Scan(&v)
	return v, err
}

func insertItem(t *testing.T, c Conn, name string, amount any) int64 {
	t.Helper()
	id, err := Insert(context.Background(), c,
		query.InsertInto("items").Value("name", query.Param(1)).Value("amount", query.Param(2)).Build(),
		name, amount)
	if err != nil {
		t.Fatalf("insert %s: %v", name, err)
	}
	return id
}

func TestInsertAndSelect(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	first := insertItem(t, db, "a", 10)
	second := insertItem(t, db, "b", 20)
	if second <= first {
		t.Errorf("expected increasing ids, got %d then %d", first, second)
	}

	amount, err := SelectOne(ctx, db,
		query.Select(query.Col("amount")).From("items").Where(query.Eq(query.Col("name"), query.Param(1))).Build(),
		scanInt, "b")
	if err != nil {
		t.Fatalf("select one: %v", err)
	}
	if amount != 20 {
		t.Errorf("expected 20, got %d", amount)
	}

	_, err = SelectOne(ctx, db,
		query.Select(query.Col("amount")).From("items").Where(query.Eq(query.Col("name"), query.Param(1))).Build(),
		scanInt, "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestSelectMaybe(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)
	insertItem(t, db, "a", 5)

	byName := func() query.Query {
		return query.Select(query.Col("amount")).From("items").Where(query.Eq(query.Col("name"), query.Param(1))).Build()
	}

	v, ok, err := SelectMaybe(ctx, db, byName(), scanInt, "a")
	if err != nil || !ok || v != 5 {
		t.Errorf("expected (5, true, nil), got (%d, %v, %v)", v, ok, err)
	}

	_, ok, err = SelectMaybe(ctx, db, byName(), scanInt, "nope")
	if err != nil || ok {
		t.Errorf("expected (false, nil) for a miss, got (%v, %v)", ok, err)
	}
}

func TestSelectManySkipsMalformedRows(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	insertItem(t, db, "one", 1)
	insertItem(t, db, "two", "not a number")
	insertItem(t, db, "three", 3)

	values, err := SelectMany(ctx, db,
		query.Select(query.Col("amount")).From("items").OrderByAsc(query.Col("id")).Build(),
		scanInt)
	if err != nil {
		t.Fatalf("select many: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("expected 2 decoded rows, got %d: %v", len(values), values)
	}
	if values[0] != 1 || values[1] != 3 {
		t.Errorf("expected [1 3], got %v", values)
	}
}

func TestExecuteAndExists(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)
	id := insertItem(t, db, "a", 1)

	exists := func() bool {
		t.Helper()
		found, err := Exists(ctx, db,
			query.Select(query.Col("id")).From("items").Where(query.Eq(query.Col("id"), query.Param(1))).Build(),
			id)
		if err != nil {
			t.Fatalf("exists: %v", err)
		}
		return found
	}

	if !exists() {
		t.Fatal("expected row to exist")
	}

	err := Execute(ctx, db,
		query.Update("items").Set("amount", query.Add(query.Col("amount"), query.Int(1))).Where(query.Eq(query.Col("id"), query.Param(1))).Build(),
		id)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := Execute(ctx, db, query.DeleteFrom("items").Where(query.Eq(query.Col("id"), query.Param(1))).Build(), id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if exists() {
		t.Error("expected row to be deleted")
	}
}

func TestReporting(t *testing.T) {
	ctx := context.Background()
	rep := &captureReporter{}
	db := openTest(t, WithReporter(rep))

	// migrations are not reported
	if n := len(rep.all()); n != 0 {
		t.Fatalf("expected no reports after open, got %d", n)
	}

	insert := query.InsertInto("items").Value("name", query.Param(1)).Value("amount", query.Param(2)).Build()
	if _, err := Insert(ctx, db, insert, "a", 1); err != nil {
		t.Fatalf("insert: %v", err)
	}

	bad := query.Select(query.Col("nope")).From("missing_table").Build()
	if _, err := SelectMany(ctx, db, bad, scanInt); err == nil {
		t.Fatal("expected error for missing table")
	}

	miss := query.Select(query.Col("id")).From("items").Where(query.Eq(query.Col("id"), query.Int(-1))).Build()
	if _, err := SelectOne(ctx, db, miss, scanInt); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}

	if _, err := Insert(SuppressReporting(ctx), db, insert, "b", 2); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got := rep.all()
	expected := []report{
		{record: RecordName, groupBy: insert.String(), failed: false},
		{record: RecordName, groupBy: bad.String(), failed: true},
		{record: RecordName, groupBy: miss.String(), failed: false},
	}
	if len(got) != len(expected) {
		t.Fatalf("expected %d reports, got %d: %+v", len(expected), len(got), got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("report %d: expected %+v, got %+v", i, expected[i], got[i])
		}
	}
}

func TestTransaction(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	count := func() int64 {
		t.Helper()
		n, err := SelectOne(ctx, db, query.Select(query.CountAll()).From("items").Build(), scanInt)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		return n
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	insertItem(t, tx, "rolled-back", 1)
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("second rollback should be a no-op, got %v", err)
	}
	if n := count(); n != 0 {
		t.Errorf("expected 0 rows after rollback, got %d", n)
	}

	err = db.InTx(ctx, func(tx *Tx) error {
		insertItem(t, tx, "committed", 1)
		return nil
	})
	if err != nil {
		t.Fatalf("in tx: %v", err)
	}
	if n := count(); n != 1 {
		t.Errorf("expected 1 row after commit, got %d", n)
	}

	boom := errors.New("boom")
	err = db.InTx(ctx, func(tx *Tx) error {
		insertItem(t, tx, "discarded", 1)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if n := count(); n != 1 {
		t.Errorf("expected 1 row after failed tx, got %d", n)
	}
}

func TestMigrationsApplyOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "migrate.db")

	open := func() *DB {
		db, err := Open(ctx, path,
			WithMigration("001_items", itemsSchema),
			WithMigration("002_index", "CREATE INDEX items_name ON items (name)"))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return db
	}

	db := open()
	insertItem(t, db, "kept", 1)
	db.Close()

	// a second open would fail on CREATE TABLE if migrations re-ran
	db = open()
	defer db.Close()

	versions, err := SelectMany(ctx, db,
		query.Select(query.Col("version")).From("migrations").OrderByAsc(query.Col("version")).Build(),
		func(s Scanner) (string, error) {
			var v string
			err := s.Scan(&v)
			return v, err
		})
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	if len(versions) != 2 || versions[0] != "001_items" || versions[1] != "002_index" {
		t.Errorf("unexpected migrations: %v", versions)
	}
}

func TestFailedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bad.db")

	_, err := Open(ctx, path, WithMigration("001_bad", "CREATE TABLE a (x INTEGER); CREATE TABLE a (x INTEGER)"))
	if err == nil {
		t.Fatal("expected migration error")
	}

	db, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	applied, err := Exists(ctx, db, query.Select(query.All()).From("migrations").Build())
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if applied {
		t.Error("failed migration was recorded")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)
	id := insertItem(t, db, "a", 1)

	_, err := Insert(ctx, db,
		query.InsertInto("items").Value("id", query.Param(1)).Value("name", query.Param(2)).Build(),
		id, "duplicate")
	if err == nil {
		t.Fatal("expected constraint error")
	}
	if !IsUniqueViolation(err) {
		t.Errorf("expected unique violation, got %v", err)
	}
	if IsUniqueViolation(errors.New("UNIQUE but not sqlite")) {
		t.Error("plain error reported as unique violation")
	}
}
