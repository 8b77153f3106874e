package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ads-marketplace/faultline/internal/errclass"
	"github.com/ads-marketplace/faultline/internal/logging"
	"github.com/ads-marketplace/faultline/internal/models"
)

type fakeTransport struct {
	mu      sync.Mutex
	single  []models.AuditEntry
	batches [][]models.AuditEntry
	err     error
	block   chan struct{}
	sent    chan struct{}
}

func (f *fakeTransport) Send(_ context.Context, e models.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.single = append(f.single, e)
	return f.err
}

func (f *fakeTransport) SendBatch(_ context.Context, entries []models.AuditEntry) error {
	f.mu.Lock()
	f.batches = append(f.batches, entries)
	block, sent, err := f.block, f.sent, f.err
	f.mu.Unlock()
	if sent != nil {
		sent <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeTransport) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) after(d time.Duration, f func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func newTestBatcher(tr Transport, log logging.Logger, clock *fakeClock) *Batcher {
	b := NewBatcher(tr, log)
	b.after = clock.after
	return b
}

func entry(action Action) models.AuditEntry {
	return NewEntry(AdminAction{Action: action})
}

func TestSanitizeForAudit(t *testing.T) {
	nested := map[string]any{"password": "inner"}
	in := map[string]any{
		"password":     "x",
		"Password":     "y",
		"ACCESS_TOKEN": "z",
		"apiKey":       "k",
		"email":        "a@b.com",
		"profile":      nested,
	}
	out := SanitizeForAudit(in)

	for _, k := range []string{"password", "Password", "ACCESS_TOKEN", "apiKey"} {
		if out[k] != Redacted {
			t.Errorf("%s = %v, want redacted", k, out[k])
		}
	}
	if out["email"] != "a@b.com" {
		t.Errorf("email = %v", out["email"])
	}
	if got := out["profile"].(map[string]any)["password"]; got != "inner" {
		t.Errorf("nested value changed: %v", got)
	}
	if in["password"] != "x" {
		t.Error("input was mutated")
	}
	if SanitizeForAudit(nil) != nil {
		t.Error("nil input should stay nil")
	}
}

func TestFormatChanges(t *testing.T) {
	got := FormatChanges(map[string]any{"a": 1, "b": 2}, map[string]any{"a": 1, "b": 3})
	if len(got) != 1 {
		t.Fatalf("got %d changes, want 1: %v", len(got), got)
	}
	if c := got["b"]; c.Old != 2 || c.New != 3 {
		t.Errorf("b = %+v", c)
	}

	got = FormatChanges(map[string]any{"a": nil}, map[string]any{"a": "x", "c": true})
	if len(got) != 2 || got["a"].Old != nil || got["c"].New != true {
		t.Errorf("unexpected changes: %+v", got)
	}

	if got := FormatChanges(map[string]any{}, map[string]any{}); len(got) != 0 {
		t.Errorf("empty inputs gave %v", got)
	}

	tags := []string{"x"}
	if got := FormatChanges(map[string]any{"t": tags}, map[string]any{"t": []string{"x"}}); len(got) != 0 {
		t.Errorf("equal slices reported as changed: %v", got)
	}

	type limits struct{ Values any }
	same := FormatChanges(map[string]any{"l": limits{[]int{1}}}, map[string]any{"l": limits{[]int{1}}})
	if len(same) != 0 {
		t.Errorf("equal structs reported as changed: %v", same)
	}
	diff := FormatChanges(map[string]any{"l": limits{map[string]int{"a": 1}}}, map[string]any{"l": limits{map[string]int{"a": 2}}})
	if len(diff) != 1 {
		t.Errorf("differing structs gave %v", diff)
	}
}

func TestSeverityFor(t *testing.T) {
	cases := []struct {
		action Action
		want   Severity
	}{
		{ActionUserBulkDelete, SeverityCritical},
		{ActionSystemConfigChange, SeverityCritical},
		{ActionSecurityBruteForce, SeverityCritical},
		{ActionUserDelete, SeverityHigh},
		{ActionUserRoleChange, SeverityHigh},
		{ActionUserCreate, SeverityMedium},
		{ActionDataExport, SeverityMedium},
		{ActionSystemHealthCheck, SeverityLow},
		{ActionUserView, SeverityLow},
		{Action("something.unmapped"), SeverityMedium},
	}
	for _, c := range cases {
		t.Run(string(c.action), func(t *testing.T) {
			if got := SeverityFor(c.action); got != c.want {
				t.Errorf("SeverityFor(%s) = %s, want %s", c.action, got, c.want)
			}
		})
	}
}

func TestBatcherFlushesOnSize(t *testing.T) {
	tr := &fakeTransport{}
	clock := &fakeClock{}
	b := newTestBatcher(tr, nil, clock)

	for i := 0; i < DefaultBatchSize; i++ {
		b.Add(entry(ActionUserView))
	}
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	if tr.batchCount() != 1 {
		t.Fatalf("got %d batch posts, want 1", tr.batchCount())
	}
	if n := len(tr.batches[0]); n != 10 {
		t.Errorf("batch has %d entries, want 10", n)
	}
	if b.Pending() != 0 {
		t.Errorf("pending = %d after size flush", b.Pending())
	}
	if len(clock.timers) != 1 || !clock.timers[0].stopped {
		t.Error("flush timer should have been armed once and stopped by the size flush")
	}
}

func TestBatcherFlushesOnTimer(t *testing.T) {
	tr := &fakeTransport{}
	clock := &fakeClock{}
	b := newTestBatcher(tr, nil, clock)

	b.Add(entry(ActionUserView))
	b.Add(entry(ActionUserView))
	if len(clock.timers) != 1 {
		t.Fatalf("armed %d timers, want 1", len(clock.timers))
	}
	timer := clock.timers[0]
	if timer.d != 5*time.Second {
		t.Errorf("timer delay = %v, want 5s", timer.d)
	}

	timer.f()

	if tr.batchCount() != 1 || len(tr.batches[0]) != 2 {
		t.Fatalf("unexpected batches: %v", tr.batches)
	}
	if b.Pending() != 0 {
		t.Errorf("pending = %d", b.Pending())
	}
}

func TestBatcherStaleTimerIsIgnored(t *testing.T) {
	tr := &fakeTransport{}
	clock := &fakeClock{}
	b := newTestBatcher(tr, nil, clock)

	b.Add(entry(ActionUserView))
	stale := clock.timers[0]
	if err := b.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	b.Add(entry(ActionUserView))

	stale.f()

	if tr.batchCount() != 1 {
		t.Errorf("stale timer flushed a new generation: %d posts", tr.batchCount())
	}
	if b.Pending() != 1 {
		t.Errorf("pending = %d, want 1", b.Pending())
	}
}

func TestBatcherDropsOnFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	tr := &fakeTransport{err: errors.New("boom")}
	b := newTestBatcher(tr, logging.NewZap(zap.New(core)), &fakeClock{})

	b.Add(entry(ActionUserView))
	b.Add(entry(ActionUserView))
	b.Add(entry(ActionUserView))

	if err := b.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
	if b.Pending() != 0 {
		t.Errorf("failed entries were requeued: pending = %d", b.Pending())
	}
	if err := b.Flush(context.Background()); err != nil {
		t.Errorf("second flush should be a no-op, got %v", err)
	}
	if tr.batchCount() != 1 {
		t.Errorf("got %d posts, want 1", tr.batchCount())
	}

	got := logs.FilterMessage("failed to flush audit batch").All()
	if len(got) != 1 {
		t.Fatalf("got %d failure logs", len(got))
	}
	if c := got[0].ContextMap()["count"]; c != int64(3) {
		t.Errorf("logged count = %v (%T)", c, c)
	}
}

func TestBatcherAddDuringInflightSend(t *testing.T) {
	release := make(chan struct{})
	tr := &fakeTransport{block: release, sent: make(chan struct{}, 1)}
	b := NewBatcher(tr, nil, WithBatchSize(2), WithFlushInterval(time.Hour))

	b.Add(entry(ActionUserView))
	b.Add(entry(ActionUserView))
	<-tr.sent

	b.Add(entry(ActionUserCreate))
	if b.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", b.Pending())
	}

	tr.mu.Lock()
	tr.block = nil
	tr.sent = nil
	tr.mu.Unlock()
	close(release)

	if err := b.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if tr.batchCount() != 2 {
		t.Fatalf("got %d posts, want 2", tr.batchCount())
	}
	if len(tr.batches[0]) != 2 || len(tr.batches[1]) != 1 {
		t.Errorf("batch sizes = %d, %d", len(tr.batches[0]), len(tr.batches[1]))
	}
	if tr.batches[1][0].Action != string(ActionUserCreate) {
		t.Errorf("second batch carries %s", tr.batches[1][0].Action)
	}
}

func TestBatcherAddAfterClose(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	tr := &fakeTransport{}
	b := NewBatcher(tr, logging.NewZap(zap.New(core)))
	if err := b.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	b.Add(entry(ActionUserView))
	if b.Pending() != 0 {
		t.Errorf("entry queued after close")
	}
	if logs.FilterMessage("batcher closed, entry dropped").Len() != 1 {
		t.Error("expected a drop warning")
	}
}

func TestClientPostsToBothEndpoints(t *testing.T) {
	var (
		mu     sync.Mutex
		paths  []string
		auth   []string
		bodies []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		auth = append(auth, r.Header.Get("Authorization"))
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok", time.Second)
	ctx := context.Background()
	if err := c.Send(ctx, entry(ActionUserDelete)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := c.SendBatch(ctx, []models.AuditEntry{entry(ActionUserView), entry(ActionUserView)}); err != nil {
		t.Fatalf("send batch: %v", err)
	}

	if paths[0] != EntryPath || paths[1] != BatchPath {
		t.Errorf("paths = %v", paths)
	}
	if auth[0] != "Bearer tok" {
		t.Errorf("authorization = %q", auth[0])
	}
	if bodies[0]["action"] != string(ActionUserDelete) || bodies[0]["severity"] != "high" {
		t.Errorf("single body = %v", bodies[0])
	}
	if entries, _ := bodies[1]["entries"].([]any); len(entries) != 2 {
		t.Errorf("batch body = %v", bodies[1])
	}
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"bad entry"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "", time.Second).Send(context.Background(), entry(ActionUserView))
	var he *errclass.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("want *errclass.HTTPError, got %T %v", err, err)
	}
	if he.Status != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", he.Status)
	}
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewClient(url, "", time.Second).SendBatch(context.Background(), []models.AuditEntry{entry(ActionUserView)})
	if err == nil {
		t.Fatal("expected error")
	}
	if f := errclass.Normalize(err); f.Kind != errclass.KindNetwork {
		t.Errorf("kind = %v, want network", f.Kind)
	}
}

func TestLogAdminActionSendsImmediately(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tr := &fakeTransport{}
	a := NewAuditor(tr, logging.NewZap(zap.New(core)))

	a.LogRoleChange(context.Background(), &Actor{ID: "u1", Email: "admin@x.io", Role: "admin"}, "u2", "user@x.io", "user", "admin")

	if len(tr.single) != 1 || tr.batchCount() != 0 {
		t.Fatalf("single=%d batches=%d", len(tr.single), tr.batchCount())
	}
	e := tr.single[0]
	if e.Action != string(ActionUserRoleChange) || e.Severity != "high" || !e.Success {
		t.Errorf("entry = %+v", e)
	}
	if e.UserID != "u1" || e.TargetUserID != "u2" {
		t.Errorf("actor/target = %s/%s", e.UserID, e.TargetUserID)
	}
	if c := e.Changes["role"]; c.Old != "user" || c.New != "admin" {
		t.Errorf("changes = %+v", e.Changes)
	}
	if logs.FilterMessage("admin action").Len() != 1 {
		t.Error("expected an admin action log line")
	}
}

func TestLogAdminActionSwallowsSendFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	tr := &fakeTransport{err: errors.New("down")}
	a := NewAuditor(tr, logging.NewZap(zap.New(core)))

	a.LogLoginFailure(context.Background(), "a@b.com", "bad password", map[string]any{"ip_token": "t"})

	if len(tr.single) != 1 {
		t.Fatalf("sent %d", len(tr.single))
	}
	e := tr.single[0]
	if e.Success || e.ErrorMessage == "" || e.UserID != "" {
		t.Errorf("entry = %+v", e)
	}
	if e.Metadata["ip_token"] != Redacted || e.Metadata["email"] != "a@b.com" {
		t.Errorf("metadata = %v", e.Metadata)
	}
	if logs.FilterMessage("failed to send audit entry").Len() != 1 {
		t.Error("expected a send failure log")
	}
}

func TestLogConfigChangeKeepsSettingName(t *testing.T) {
	tr := &fakeTransport{}
	a := NewAuditor(tr, nil)

	a.LogConfigChange(context.Background(), &Actor{ID: "u1"}, "max_upload_mb", 10, 20)
	a.LogConfigChange(context.Background(), &Actor{ID: "u1"}, "smtp_password", "old", "new")

	if len(tr.single) != 2 {
		t.Fatalf("sent %d", len(tr.single))
	}
	plain, secret := tr.single[0], tr.single[1]
	if plain.Metadata["setting"] != "max_upload_mb" {
		t.Errorf("metadata = %v", plain.Metadata)
	}
	if c := plain.Changes["max_upload_mb"]; c.Old != 10 || c.New != 20 {
		t.Errorf("changes = %+v", plain.Changes)
	}
	if secret.Metadata["setting"] != "smtp_password" {
		t.Errorf("metadata = %v", secret.Metadata)
	}
	if c := secret.Changes["smtp_password"]; c.Old != Redacted || c.New != Redacted {
		t.Errorf("secret changes = %+v", secret.Changes)
	}
}

func TestLogBulkOperationRejectsOtherActions(t *testing.T) {
	tr := &fakeTransport{}
	a := NewAuditor(tr, nil)
	if err := a.LogBulkOperation(context.Background(), nil, ActionUserCreate, []string{"1"}, nil); err == nil {
		t.Error("expected error for non-bulk action")
	}
	if err := a.LogBulkOperation(context.Background(), nil, ActionUserBulkDelete, []string{"1", "2"}, nil); err != nil {
		t.Fatal(err)
	}
	if len(tr.single) != 1 || tr.single[0].Metadata["count"] != 2 {
		t.Errorf("entries = %+v", tr.single)
	}
}

func TestWithAuditLog(t *testing.T) {
	tr := &fakeTransport{}
	a := NewAuditor(tr, nil)
	user := func() *Actor { return &Actor{ID: "u1"} }

	ok := WithAuditLog(a, ActionReportGenerate, user, nil, func(context.Context) (int, error) {
		return 42, nil
	})
	got, err := ok(context.Background())
	if got != 42 || err != nil {
		t.Fatalf("got %d, %v", got, err)
	}

	sentinel := errors.New("nope")
	bad := WithAuditLog(a, ActionDataImport, func() *Actor { return nil }, func() map[string]any {
		return map[string]any{"source": "csv"}
	}, func(context.Context) (string, error) {
		return "", sentinel
	})
	if _, err := bad(context.Background()); err != sentinel {
		t.Fatalf("error altered: %v", err)
	}

	if len(tr.single) != 2 {
		t.Fatalf("sent %d entries", len(tr.single))
	}
	first, second := tr.single[0], tr.single[1]
	if !first.Success || first.Metadata["result"] != 42 || first.UserID != "u1" {
		t.Errorf("success entry = %+v", first)
	}
	if second.Success || second.ErrorMessage != "nope" || second.UserID != "" {
		t.Errorf("failure entry = %+v", second)
	}
	if _, has := second.Metadata["result"]; has || second.Metadata["source"] != "csv" {
		t.Errorf("failure metadata = %v", second.Metadata)
	}
}

func TestWithAuditLogArg(t *testing.T) {
	tr := &fakeTransport{}
	a := NewAuditor(tr, nil)
	del := WithAuditLogArg(a, ActionUserDelete, nil, func(id string) map[string]any {
		return map[string]any{"target": id}
	}, func(_ context.Context, id string) (bool, error) {
		return id == "u9", nil
	})
	ok, err := del(context.Background(), "u9")
	if !ok || err != nil {
		t.Fatalf("got %v, %v", ok, err)
	}
	if tr.single[0].Metadata["target"] != "u9" {
		t.Errorf("metadata = %v", tr.single[0].Metadata)
	}
}

func TestSanitizeChanges(t *testing.T) {
	got := SanitizeChanges(map[string]models.Change{
		"api_key": {Old: "a", New: "b"},
		"name":    {Old: "x", New: "y"},
	})
	if got["api_key"].Old != Redacted || got["api_key"].New != Redacted {
		t.Errorf("api_key = %+v", got["api_key"])
	}
	if got["name"].New != "y" {
		t.Errorf("name = %+v", got["name"])
	}
}
