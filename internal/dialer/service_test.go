package dialer

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/acme/autodialer/internal/clock"
	"github.com/acme/autodialer/internal/domain"
	"github.com/acme/autodialer/internal/repository"
	"github.com/acme/autodialer/internal/repository/memory"
	"github.com/acme/autodialer/internal/telephony"
	apperrors "github.com/acme/autodialer/pkg/errors"
)

// Tuesday, inside default business hours.
var tuesdayMorning = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

var alwaysConfirm = ConfirmFunc(func(context.Context, string, string) (bool, error) { return true, nil })

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *recordingNotifier) Notify(title, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
}

func (n *recordingNotifier) seen(title string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, t := range n.titles {
		if t == title {
			return true
		}
	}
	return false
}

// blockingProvider hands every dispatch to the test and waits for a reply.
type blockingProvider struct {
	calls   chan domain.CallJob
	replies chan domain.CallResult
}

func newBlockingProvider() *blockingProvider {
	return &blockingProvider{calls: make(chan domain.CallJob), replies: make(chan domain.CallResult)}
}

func (p *blockingProvider) AttemptCall(ctx context.Context, job domain.CallJob) (domain.CallResult, error) {
	select {
	case p.calls <- job:
	case <-ctx.Done():
		return domain.CallResult{}, ctx.Err()
	}
	select {
	case res := <-p.replies:
		return res, nil
	case <-ctx.Done():
		return domain.CallResult{}, ctx.Err()
	}
}

func (p *blockingProvider) next(t *testing.T) domain.CallJob {
	t.Helper()
	select {
	case job := <-p.calls:
		return job
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for a dispatch")
		return domain.CallJob{}
	}
}

func answered(sec int) domain.CallResult {
	return domain.CallResult{Connected: true, Duration: sec, Outcome: domain.OutcomeAnswered}
}

func noAnswer() domain.CallResult {
	return domain.CallResult{Outcome: domain.OutcomeNoAnswer}
}

type harness struct {
	svc      *Service
	kv       *memory.Store
	clock    *clock.FakeClock
	notifier *recordingNotifier
}

func newHarness(t *testing.T, provider telephony.Provider) *harness {
	t.Helper()
	return newHarnessWithKV(t, provider, memory.New())
}

func newHarnessWithKV(t *testing.T, provider telephony.Provider, kv *memory.Store) *harness {
	t.Helper()
	h := &harness{kv: kv, clock: clock.Fake(tuesdayMorning), notifier: &recordingNotifier{}}
	svc, err := New(context.Background(), Options{
		KV:        kv,
		Provider:  provider,
		Clock:     h.clock,
		Location:  time.UTC,
		Confirmer: alwaysConfirm,
		Notifier:  h.notifier,
		Attempts:  kv,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	t.Cleanup(func() {
		svc.Stop(context.Background())
		_ = svc.Wait(context.Background())
	})
	return h
}

func (h *harness) noDelay() {
	zero := 0
	h.svc.UpdateSettings(context.Background(), domain.SettingsPatch{DelayBetweenCalls: &zero})
}

func (h *harness) enqueue(t *testing.T, jobs ...domain.NewJob) []domain.CallJob {
	t.Helper()
	res, err := h.svc.Enqueue(context.Background(), jobs)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("enqueue refused: %v", res.Issues)
	}
	return res.Jobs
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	res, err := h.svc.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !res.Started {
		t.Fatalf("start refused: %v", res.Compliance.Issues)
	}
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.svc.Wait(ctx); err != nil {
		t.Fatalf("loop did not exit: %v", err)
	}
}

func consented(phone string, priority domain.Priority, maxAttempts int) domain.NewJob {
	return domain.NewJob{
		PhoneNumber:     phone,
		Priority:        priority,
		MaxAttempts:     maxAttempts,
		Purpose:         "appointment reminder",
		ConsentVerified: true,
	}
}

func TestHighPriorityDispatchedFirst(t *testing.T) {
	p := newBlockingProvider()
	h := newHarness(t, p)
	h.noDelay()
	h.enqueue(t, consented("low", domain.PriorityLow, 1), consented("high", domain.PriorityHigh, 1))
	h.start(t)

	first := p.next(t)
	if first.PhoneNumber != "high" {
		t.Fatalf("first dispatch = %s, want high", first.PhoneNumber)
	}
	if first.Status != domain.JobStatusCalling || first.CurrentAttempts != 1 || first.LastAttempt == nil {
		t.Fatalf("job not marked calling before dispatch: %+v", first)
	}
	if cur, ok := h.svc.CurrentCall(); !ok || cur.ID != first.ID {
		t.Fatalf("current call = %+v ok=%v", cur, ok)
	}
	p.replies <- answered(60)

	if second := p.next(t); second.PhoneNumber != "low" {
		t.Fatalf("second dispatch = %s, want low", second.PhoneNumber)
	}
	p.replies <- noAnswer()
	h.wait(t)

	if h.svc.IsActive() {
		t.Fatalf("loop should deactivate once the queue is exhausted")
	}
	if _, ok := h.svc.CurrentCall(); ok {
		t.Fatalf("current call should be cleared")
	}
	for _, job := range h.svc.Queue() {
		if job.Status == domain.JobStatusCalling {
			t.Fatalf("job %s left calling", job.ID)
		}
	}
	if !h.notifier.seen(NoticeQueueComplete) {
		t.Fatalf("expected queue complete notice")
	}
	stats := h.svc.Statistics()
	if stats.TotalCalls != 2 || stats.SuccessfulCalls != 1 || stats.FailedCalls != 1 {
		t.Fatalf("unexpected statistics %+v", stats)
	}
}

func TestSingleAttemptFailureCountedOnce(t *testing.T) {
	var calls int
	provider := telephony.ProviderFunc(func(context.Context, domain.CallJob) (domain.CallResult, error) {
		calls++
		return noAnswer(), nil
	})
	h := newHarness(t, provider)
	h.noDelay()
	job := h.enqueue(t, consented("+1", domain.PriorityMedium, 1))[0]
	h.start(t)
	h.wait(t)

	got, _ := h.svc.Get(job.ID)
	if got.Status != domain.JobStatusFailed || got.CurrentAttempts != 1 {
		t.Fatalf("unexpected job state %+v", got)
	}
	if got.Eligible() {
		t.Fatalf("failed job must not be eligible")
	}
	if calls != 1 {
		t.Fatalf("provider called %d times, want 1", calls)
	}
	if stats := h.svc.Statistics(); stats.FailedCalls != 1 || stats.TotalCalls != 1 {
		t.Fatalf("unexpected statistics %+v", stats)
	}

	// A second run finds nothing to do.
	h.start(t)
	h.wait(t)
	if calls != 1 {
		t.Fatalf("exhausted job was re-dispatched")
	}
}

func TestStopMidDispatchDiscardsOutcome(t *testing.T) {
	p := newBlockingProvider()
	h := newHarness(t, p)
	h.noDelay()
	job := h.enqueue(t, consented("+1", domain.PriorityMedium, 2))[0]
	h.start(t)

	p.next(t)
	if !h.svc.Stop(context.Background()) {
		t.Fatalf("stop should report an active run")
	}
	if h.svc.IsActive() {
		t.Fatalf("stop must deactivate immediately")
	}
	h.wait(t)

	got, _ := h.svc.Get(job.ID)
	if got.Status != domain.JobStatusPending || got.CurrentAttempts != 1 || got.LastAttempt == nil || got.CallResult != nil {
		t.Fatalf("expected reverted pending job with attempt kept, got %+v", got)
	}
	if stats := h.svc.Statistics(); stats != (domain.Statistics{}) {
		t.Fatalf("statistics changed by abandoned dispatch: %+v", stats)
	}
	if h.svc.Stop(context.Background()) {
		t.Fatalf("second stop should report no active run")
	}

	// The reverted job is dispatched again on the next run.
	h.start(t)
	again := p.next(t)
	if again.ID != job.ID || again.CurrentAttempts != 2 {
		t.Fatalf("unexpected redispatch %+v", again)
	}
	p.replies <- answered(45)
	h.wait(t)
	if got, _ := h.svc.Get(job.ID); got.Status != domain.JobStatusCompleted || got.CurrentAttempts > got.MaxAttempts {
		t.Fatalf("unexpected final job %+v", got)
	}
}

func TestEnqueueRefusesUnconsentedBatch(t *testing.T) {
	h := newHarness(t, newBlockingProvider())

	batch := make([]domain.NewJob, 5)
	for i := range batch {
		batch[i] = domain.NewJob{PhoneNumber: "+1", Purpose: "survey", MaxAttempts: 1}
	}
	res, err := h.svc.Enqueue(context.Background(), batch)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if res.Accepted || len(res.Issues) != 1 || res.Issues[0] != "5 calls lack proper consent" {
		t.Fatalf("unexpected result %+v", res)
	}
	if n := len(h.svc.Queue()); n != 0 {
		t.Fatalf("queue has %d jobs after refusal", n)
	}
	if _, ok, _ := h.kv.LoadJSON(context.Background(), repository.KeyQueue); ok {
		t.Fatalf("refused enqueue must not persist")
	}
}

func TestEnqueueRespectsDailyQuota(t *testing.T) {
	h := newHarness(t, newBlockingProvider())
	limit := 2
	h.svc.UpdateSettings(context.Background(), domain.SettingsPatch{MaxDailyAttempts: &limit})

	res, err := h.svc.Enqueue(context.Background(), []domain.NewJob{
		consented("+1", domain.PriorityLow, 1),
		consented("+2", domain.PriorityLow, 1),
		consented("+3", domain.PriorityLow, 1),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if res.Accepted || res.Issues[0] != "Cannot exceed 2 calls per day" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(h.svc.Queue()) != 0 {
		t.Fatalf("partial insert after quota refusal")
	}
}

func TestEnqueueValidatesInput(t *testing.T) {
	h := newHarness(t, newBlockingProvider())

	_, err := h.svc.Enqueue(context.Background(), []domain.NewJob{{PhoneNumber: "+1", MaxAttempts: 1}})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error for missing purpose, got %v", err)
	}

	jobs := h.enqueue(t, domain.NewJob{PhoneNumber: " +1 ", Purpose: "survey", MaxAttempts: 1, ConsentVerified: true})
	if jobs[0].Priority != domain.PriorityMedium || jobs[0].PhoneNumber != "+1" {
		t.Fatalf("expected normalized job, got %+v", jobs[0])
	}
}

func TestStartRefusedOutsideBusinessHours(t *testing.T) {
	h := newHarness(t, newBlockingProvider())
	h.enqueue(t, consented("+1", domain.PriorityLow, 1))
	h.clock.Set(time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC))

	asked := false
	res, err := h.svc.Start(context.Background(), ConfirmFunc(func(context.Context, string, string) (bool, error) {
		asked = true
		return true, nil
	}))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Started || res.Compliance.IsCompliant || asked {
		t.Fatalf("expected refusal before confirmation, got %+v asked=%v", res, asked)
	}
	if !strings.Contains(strings.Join(res.Compliance.Issues, "\n"), "day is not allowed") {
		t.Fatalf("expected disallowed day issue, got %v", res.Compliance.Issues)
	}
	if h.svc.IsActive() {
		t.Fatalf("refused start must leave the dialer idle")
	}
}

func TestStartDeclinedStaysIdle(t *testing.T) {
	h := newHarness(t, newBlockingProvider())
	h.enqueue(t, consented("+1", domain.PriorityLow, 1))

	var notice string
	res, err := h.svc.Start(context.Background(), ConfirmFunc(func(_ context.Context, _ string, text string) (bool, error) {
		notice = text
		return false, nil
	}))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Started || h.svc.IsActive() {
		t.Fatalf("declined start must not run")
	}
	if !strings.Contains(notice, "Misuse may result in legal consequences.") {
		t.Fatalf("legal notice not presented: %q", notice)
	}
}

func TestStartWhileActiveConflicts(t *testing.T) {
	p := newBlockingProvider()
	h := newHarness(t, p)
	h.enqueue(t, consented("+1", domain.PriorityLow, 1))
	h.start(t)
	p.next(t)

	if _, err := h.svc.Start(context.Background(), nil); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestGeneratorErrorFailsJobAndContinues(t *testing.T) {
	provider := telephony.ProviderFunc(func(_ context.Context, job domain.CallJob) (domain.CallResult, error) {
		if job.PhoneNumber == "broken" {
			return domain.CallResult{}, errors.New("line unavailable")
		}
		return answered(30), nil
	})
	h := newHarness(t, provider)
	h.noDelay()
	jobs := h.enqueue(t, consented("broken", domain.PriorityHigh, 1), consented("ok", domain.PriorityLow, 1))
	h.start(t)
	h.wait(t)

	broken, _ := h.svc.Get(jobs[0].ID)
	if broken.Status != domain.JobStatusFailed || broken.CallResult == nil ||
		broken.CallResult.Outcome != domain.OutcomeError || broken.CallResult.Notes != "line unavailable" {
		t.Fatalf("unexpected failed job %+v", broken)
	}
	if ok, _ := h.svc.Get(jobs[1].ID); ok.Status != domain.JobStatusCompleted {
		t.Fatalf("loop did not continue past the failure: %+v", ok)
	}
	if stats := h.svc.Statistics(); stats.FailedCalls != 1 || stats.SuccessfulCalls != 1 {
		t.Fatalf("unexpected statistics %+v", stats)
	}
}

func TestAverageDurationIsRunningMean(t *testing.T) {
	results := []domain.CallResult{answered(60), noAnswer(), answered(120)}
	var i int
	provider := telephony.ProviderFunc(func(context.Context, domain.CallJob) (domain.CallResult, error) {
		res := results[i]
		i++
		return res, nil
	})
	h := newHarness(t, provider)
	h.noDelay()
	h.enqueue(t,
		consented("+1", domain.PriorityHigh, 1),
		consented("+2", domain.PriorityMedium, 1),
		consented("+3", domain.PriorityLow, 1),
	)
	h.start(t)
	h.wait(t)

	stats := h.svc.Statistics()
	if stats.AverageDuration != 90 || stats.TimedCalls != 2 || stats.TotalCalls != 3 {
		t.Fatalf("unexpected statistics %+v", stats)
	}
}

func TestDelayBetweenCallsUsesClock(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	provider := telephony.ProviderFunc(func(context.Context, domain.CallJob) (domain.CallResult, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return answered(30), nil
	})
	h := newHarness(t, provider)
	h.enqueue(t, consented("+1", domain.PriorityHigh, 1), consented("+2", domain.PriorityLow, 1))
	h.start(t)

	h.clock.WaitForTimers(1)
	mu.Lock()
	if calls != 1 {
		mu.Unlock()
		t.Fatalf("expected one dispatch before the delay elapsed, got %d", calls)
	}
	mu.Unlock()

	h.clock.Advance(30 * time.Second)
	h.clock.WaitForTimers(1)
	h.clock.Advance(30 * time.Second)
	h.wait(t)

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected two dispatches, got %d", calls)
	}
}

func TestStopDuringDelayEndsRun(t *testing.T) {
	provider := telephony.ProviderFunc(func(context.Context, domain.CallJob) (domain.CallResult, error) {
		return answered(30), nil
	})
	h := newHarness(t, provider)
	h.enqueue(t, consented("+1", domain.PriorityHigh, 1), consented("+2", domain.PriorityLow, 1))
	h.start(t)

	h.clock.WaitForTimers(1)
	h.svc.Stop(context.Background())
	h.wait(t)

	if pending := h.svc.Eligible(); len(pending) != 1 || pending[0].PhoneNumber != "+2" {
		t.Fatalf("expected the second job to stay pending, got %+v", pending)
	}
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	provider := telephony.ProviderFunc(func(context.Context, domain.CallJob) (domain.CallResult, error) {
		return answered(42), nil
	})
	kv := memory.New()
	h := newHarnessWithKV(t, provider, kv)
	h.noDelay()
	job := h.enqueue(t, consented("+1", domain.PriorityHigh, 1))[0]
	h.start(t)
	h.wait(t)

	restarted := newHarnessWithKV(t, provider, kv)
	got, ok := restarted.svc.Get(job.ID)
	if !ok || got.Status != domain.JobStatusCompleted || got.LastAttempt == nil || !got.LastAttempt.Equal(tuesdayMorning) {
		t.Fatalf("queue not restored: %+v ok=%v", got, ok)
	}
	if stats := restarted.svc.Statistics(); stats.TotalCalls != 1 || stats.AverageDuration != 42 {
		t.Fatalf("statistics not restored: %+v", stats)
	}
	if restarted.svc.Settings().DelayBetweenCalls != 0 {
		t.Fatalf("settings not restored")
	}

	history, err := restarted.svc.History(context.Background(), job.ID, 0)
	if err != nil || len(history) != 1 || history[0].Outcome != domain.OutcomeAnswered {
		t.Fatalf("history = %+v err=%v", history, err)
	}
}

func TestLoadRecoversInterruptedDispatch(t *testing.T) {
	kv := memory.New()
	raw := `[{"id":"a","phoneNumber":"+1","priority":"high","maxAttempts":2,"currentAttempts":1,"status":"calling","purpose":"p","consentVerified":true,"lastAttempt":"1704189600000"}]`
	if err := kv.SaveJSON(context.Background(), repository.KeyQueue, raw); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := newHarnessWithKV(t, newBlockingProvider(), kv)
	got, ok := h.svc.Get("a")
	if !ok || got.Status != domain.JobStatusPending || got.CurrentAttempts != 1 || !got.LastAttempt.Equal(tuesdayMorning) {
		t.Fatalf("unexpected recovered job %+v", got)
	}
}

func TestLoadReadsZonelessDatesInServiceLocation(t *testing.T) {
	kv := memory.New()
	raw := `[{"id":"a","phoneNumber":"+1","priority":"high","maxAttempts":2,"status":"pending","purpose":"p","consentVerified":true,"scheduledTime":"2024-01-02T09:30:00"}]`
	if err := kv.SaveJSON(context.Background(), repository.KeyQueue, raw); err != nil {
		t.Fatalf("seed: %v", err)
	}
	est := time.FixedZone("EST", -5*60*60)

	svc, err := New(context.Background(), Options{
		KV:       kv,
		Provider: newBlockingProvider(),
		Clock:    clock.Fake(tuesdayMorning),
		Location: est,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, ok := svc.Get("a")
	want := time.Date(2024, 1, 2, 9, 30, 0, 0, est)
	if !ok || got.ScheduledTime == nil || !got.ScheduledTime.Equal(want) {
		t.Fatalf("scheduledTime = %v, want %v", got.ScheduledTime, want)
	}
}

type failingKV struct{ *memory.Store }

func (failingKV) SaveJSON(context.Context, string, string) error { return errors.New("disk full") }

func TestPersistenceFailureKeepsMemoryState(t *testing.T) {
	svc, err := New(context.Background(), Options{
		KV:       failingKV{Store: memory.New()},
		Provider: newBlockingProvider(),
		Clock:    clock.Fake(tuesdayMorning),
		Location: time.UTC,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := svc.Enqueue(context.Background(), []domain.NewJob{consented("+1", domain.PriorityLow, 1)})
	if err != nil || !res.Accepted {
		t.Fatalf("enqueue should succeed despite storage failure: %+v %v", res, err)
	}
	if len(svc.Queue()) != 1 {
		t.Fatalf("in-memory queue rolled back")
	}
}

func TestCancelOnlyPendingJobs(t *testing.T) {
	h := newHarness(t, newBlockingProvider())
	job := h.enqueue(t, consented("+1", domain.PriorityLow, 1))[0]

	got, err := h.svc.Cancel(context.Background(), job.ID)
	if err != nil || got.Status != domain.JobStatusCancelled {
		t.Fatalf("cancel = %+v err=%v", got, err)
	}
	if _, err := h.svc.Cancel(context.Background(), job.ID); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict on second cancel, got %v", err)
	}
	if _, err := h.svc.Cancel(context.Background(), "missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !h.svc.Remove(context.Background(), job.ID) || h.svc.Remove(context.Background(), job.ID) {
		t.Fatalf("remove should succeed once")
	}
}

func TestExportDocument(t *testing.T) {
	h := newHarness(t, newBlockingProvider())
	h.enqueue(t, consented("+1", domain.PriorityLow, 1))

	doc, err := h.svc.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	for _, want := range []string{`"queue"`, `"statistics"`, `"settings"`, `"exportDate": "2024-01-02T10:00:00Z"`, `"phoneNumber": "+1"`} {
		if !strings.Contains(doc, want) {
			t.Fatalf("export missing %s:\n%s", want, doc)
		}
	}
}

func TestUpdateRejectsAttemptsOutOfRange(t *testing.T) {
	h := newHarness(t, newBlockingProvider())
	job := h.enqueue(t, consented("+1", domain.PriorityLow, 2))[0]
	ctx := context.Background()
	intp := func(v int) *int { return &v }

	for name, patch := range map[string]domain.JobPatch{
		"current above max": {CurrentAttempts: intp(3)},
		"negative current":  {CurrentAttempts: intp(-1)},
		"zero max":          {MaxAttempts: intp(0)},
		"both out of order": {CurrentAttempts: intp(2), MaxAttempts: intp(1)},
	} {
		if _, err := h.svc.Update(ctx, job.ID, patch); !errors.Is(err, apperrors.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if got, _ := h.svc.Get(job.ID); got.CurrentAttempts != 0 || got.MaxAttempts != 2 {
		t.Fatalf("rejected patch changed the job: %+v", got)
	}

	got, err := h.svc.Update(ctx, job.ID, domain.JobPatch{CurrentAttempts: intp(2)})
	if err != nil || got.CurrentAttempts != 2 {
		t.Fatalf("update = %+v err=%v", got, err)
	}
	if _, err := h.svc.Update(ctx, job.ID, domain.JobPatch{MaxAttempts: intp(1)}); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("lowering maxAttempts below the attempts made must fail, got %v", err)
	}
	if _, err := h.svc.Update(ctx, "missing", domain.JobPatch{MaxAttempts: intp(3)}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveDuringRunSkipsVanishedJobs(t *testing.T) {
	var (
		mu         sync.Mutex
		dispatched []domain.CallJob
	)
	provider := telephony.ProviderFunc(func(_ context.Context, job domain.CallJob) (domain.CallResult, error) {
		mu.Lock()
		dispatched = append(dispatched, job)
		mu.Unlock()
		return answered(10), nil
	})
	h := newHarness(t, provider)
	h.noDelay()

	inputs := make([]domain.NewJob, 0, 40)
	for i := 0; i < 40; i++ {
		inputs = append(inputs, consented("+1555"+strconv.Itoa(1000+i), domain.PriorityMedium, 1))
	}
	jobs := h.enqueue(t, inputs...)
	h.start(t)
	for i := len(jobs) - 1; i >= 0; i -= 2 {
		h.svc.Remove(context.Background(), jobs[i].ID)
	}
	h.wait(t)

	if !h.notifier.seen(NoticeQueueComplete) {
		t.Fatalf("queue did not complete")
	}
	mu.Lock()
	defer mu.Unlock()
	for _, job := range dispatched {
		if job.ID == "" || job.Status != domain.JobStatusCalling || job.CurrentAttempts != 1 {
			t.Fatalf("dispatched a job that was not marked calling: %+v", job)
		}
	}
	remaining := h.svc.Queue()
	if len(remaining) != 20 {
		t.Fatalf("queue has %d jobs, want 20", len(remaining))
	}
	for _, job := range remaining {
		if job.Status != domain.JobStatusCompleted {
			t.Fatalf("job left undialled: %+v", job)
		}
	}
}
