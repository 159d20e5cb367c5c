package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func testEntry(action Action, caller string, ts time.Time) Entry {
	return Entry{
		Timestamp:       ts,
		Action:          action,
		Caller:          caller,
		FileRef:         "cover.png",
		MessageSHA256:   "deadbeef",
		IntegrityStatus: "ok",
	}
}

func TestFileLedgerAppendQuery(t *testing.T) {
	l := NewFileLedger(filepath.Join(t.TempDir(), "audit.ledger"))
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		action := ActionEncode
		if i == 2 {
			action = ActionDecode
		}
		if err := l.Append(testEntry(action, "fern", base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	all, err := l.Query(Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("entries = %d, want 3", len(all))
	}

	decodes, err := l.Query(Filter{Action: ActionDecode})
	if err != nil {
		t.Fatalf("query decode: %v", err)
	}
	if len(decodes) != 1 {
		t.Fatalf("decode entries = %d, want 1", len(decodes))
	}

	recent, err := l.Query(Filter{Since: base.Add(90 * time.Minute)})
	if err != nil {
		t.Fatalf("query since: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("recent entries = %d, want 1", len(recent))
	}
}

func TestFileLedgerMissingFileIsEmpty(t *testing.T) {
	l := NewFileLedger(filepath.Join(t.TempDir(), "never-written.ledger"))
	out, err := l.Query(Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("entries = %d, want 0", len(out))
	}
}

func TestFileLedgerConcurrentAppenders(t *testing.T) {
	l := NewFileLedger(filepath.Join(t.TempDir(), "audit.ledger"))
	now := time.Now().UTC()

	const writers, perWriter = 8, 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := l.Append(testEntry(ActionEncode, fmt.Sprintf("w%d", w), now)); err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}

	// Readers run against the live file and must not be blocked.
	for i := 0; i < 4; i++ {
		if _, err := l.Query(Filter{}); err != nil {
			t.Fatalf("query during appends: %v", err)
		}
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("append: %v", err)
	}

	all, err := l.Query(Filter{})
	if err != nil {
		t.Fatalf("final query: %v", err)
	}
	if len(all) != writers*perWriter {
		t.Fatalf("entries = %d, want %d", len(all), writers*perWriter)
	}
}

func TestMemoryLedger(t *testing.T) {
	l := NewMemoryLedger()
	now := time.Now().UTC()
	if err := l.Append(testEntry(ActionEncode, "fern", now)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Append(testEntry(ActionDecode, "moss", now)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if l.Len() != 2 {
		t.Fatalf("len = %d, want 2", l.Len())
	}

	out, err := l.Query(Filter{Caller: "moss"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].Action != ActionDecode {
		t.Fatalf("filtered query: %+v", out)
	}
}

func TestFilterZeroMatchesAll(t *testing.T) {
	e := testEntry(ActionEncode, "fern", time.Now())
	if !(Filter{}).matches(e) {
		t.Fatal("zero filter rejected an entry")
	}
	if (Filter{Action: ActionDecode}).matches(e) {
		t.Fatal("action filter matched wrong action")
	}
}

func TestFileLedgerCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ledger")
	l := NewFileLedger(path)
	if err := l.Append(testEntry(ActionEncode, "fern", time.Now())); err != nil {
		t.Fatalf("append: %v", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("{broken json\n"); err != nil {
		t.Fatalf("write corrupt line: %v", err)
	}
	f.Close()

	if _, err := l.Query(Filter{}); err == nil {
		t.Fatal("corrupt record went unreported")
	}
}
