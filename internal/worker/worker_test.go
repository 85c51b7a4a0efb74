package worker_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/courier/core/config"
	"basegraph.app/courier/internal/forge"
	"basegraph.app/courier/internal/model"
	"basegraph.app/courier/internal/worker"
)

var _ = Describe("Worker", func() {
	var (
		ctx       context.Context
		inbox     *mockInbox
		processor *mockProcessor
		w         *worker.Worker
		cfg       worker.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		inbox = &mockInbox{}
		processor = &mockProcessor{}
		cfg = worker.Config{Interval: time.Minute, RateLimitBackoff: 5 * time.Minute}
	})

	JustBeforeEach(func() {
		w = worker.New(inbox, processor, cfg)
	})

	Describe("Poll", func() {
		It("submits every notification of a batch", func() {
			inbox.pollFn = func(ctx context.Context) (forge.NotificationBatch, error) {
				return forge.NotificationBatch{Notifications: []model.Notification{mention("t1"), mention("t2")}}, nil
			}

			next := w.Poll(ctx)
			w.Wait()

			Expect(next).To(Equal(time.Minute))
			Expect(processor.processed()).To(ConsistOf(
				HaveField("ThreadID", "t1"),
				HaveField("ThreadID", "t2"),
			))
		})

		It("follows the server hint on fresh responses", func() {
			inbox.pollFn = func(ctx context.Context) (forge.NotificationBatch, error) {
				return forge.NotificationBatch{PollInterval: 30 * time.Second}, nil
			}

			Expect(w.Poll(ctx)).To(Equal(30 * time.Second))
		})

		It("follows the server hint on not-modified responses", func() {
			inbox.pollFn = func(ctx context.Context) (forge.NotificationBatch, error) {
				return forge.NotificationBatch{NotModified: true, PollInterval: 120 * time.Second}, nil
			}

			Expect(w.Poll(ctx)).To(Equal(120 * time.Second))
			Expect(processor.processed()).To(BeEmpty())
		})

		It("keeps the last hint when a response carries none", func() {
			hint := 45 * time.Second
			inbox.pollFn = func(ctx context.Context) (forge.NotificationBatch, error) {
				b := forge.NotificationBatch{NotModified: true, PollInterval: hint}
				hint = 0
				return b, nil
			}

			Expect(w.Poll(ctx)).To(Equal(45 * time.Second))
			Expect(w.Poll(ctx)).To(Equal(45 * time.Second))
		})

		It("backs off on rate limits instead of trusting the hint", func() {
			inbox.pollFn = func(ctx context.Context) (forge.NotificationBatch, error) {
				return forge.NotificationBatch{PollInterval: 10 * time.Second}, forge.ErrRateLimited
			}

			Expect(w.Poll(ctx)).To(Equal(5 * time.Minute))
		})

		It("retries at the normal interval after transport errors", func() {
			inbox.pollFn = func(ctx context.Context) (forge.NotificationBatch, error) {
				return forge.NotificationBatch{}, errors.New("connection reset")
			}

			Expect(w.Poll(ctx)).To(Equal(time.Minute))
		})
	})

	Describe("unread retries", func() {
		It("polls conditionally while nothing is left unread", func() {
			inbox.pollFn = func(ctx context.Context) (forge.NotificationBatch, error) {
				return forge.NotificationBatch{Notifications: []model.Notification{mention("t1")}}, nil
			}

			w.Poll(ctx)
			w.Wait()
			w.Poll(ctx)
			w.Wait()

			Expect(inbox.conditional).To(Equal([]bool{true, true}))
		})

		It("polls unconditionally after a notification is left unread", func() {
			processor.outcome = worker.OutcomeDispatchFailed
			inbox.pollFn = func(ctx context.Context) (forge.NotificationBatch, error) {
				return forge.NotificationBatch{Notifications: []model.Notification{mention("t1")}}, nil
			}

			w.Poll(ctx)
			w.Wait()
			w.Poll(ctx)
			w.Wait()

			Expect(inbox.conditional).To(Equal([]bool{true, false}))
		})

		It("keeps the retry pending when the unconditional poll fails", func() {
			processor.outcome = worker.OutcomeFetchFailed
			calls := 0
			inbox.pollFn = func(ctx context.Context) (forge.NotificationBatch, error) {
				calls++
				if calls == 1 {
					return forge.NotificationBatch{}, errors.New("connection reset")
				}
				return forge.NotificationBatch{NotModified: true}, nil
			}
			w.Submit(ctx, mention("t1"))
			w.Wait()

			w.Poll(ctx)
			w.Poll(ctx)
			w.Poll(ctx)

			Expect(inbox.conditional).To(Equal([]bool{false, false, true}))
		})

		It("refetches a failed thread from a forge that answers 304 to conditional polls", func() {
			const lastModified = "Fri, 01 Mar 2024 10:00:00 GMT"
			var mu sync.Mutex
			var statuses []int
			server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				mu.Lock()
				defer mu.Unlock()
				if r.Header.Get("If-Modified-Since") == lastModified {
					statuses = append(statuses, http.StatusNotModified)
					rw.WriteHeader(http.StatusNotModified)
					return
				}
				statuses = append(statuses, http.StatusOK)
				rw.Header().Set("Last-Modified", lastModified)
				_, _ = io.WriteString(rw, `[{"id": "t1", "reason": "mention",
					"subject": {"title": "Crash", "url": "https://api.github.com/repos/acme/widgets/issues/5", "type": "Issue"},
					"repository": {"full_name": "acme/widgets"}}]`)
			}))
			defer server.Close()

			github := forge.NewGitHub(config.GitHubConfig{
				APIURL:      server.URL,
				BotToken:    "bot-token",
				RatePerSec:  1000,
				HTTPTimeout: 5 * time.Second,
			})
			processor.outcome = worker.OutcomeFetchFailed
			w = worker.New(github, processor, cfg)

			for i := 0; i < 3; i++ {
				w.Poll(ctx)
				w.Wait()
			}

			Expect(processor.threadIDs()).To(Equal([]string{"t1", "t1", "t1"}))
			Expect(statuses).To(Equal([]int{http.StatusOK, http.StatusOK, http.StatusOK}))
		})

		It("treats only unread outcomes as retryable", func() {
			Expect(worker.OutcomeDispatched.Retryable()).To(BeFalse())
			Expect(worker.OutcomeDuplicate.Retryable()).To(BeFalse())
			Expect(worker.OutcomeNoTrigger.Retryable()).To(BeFalse())
			Expect(worker.OutcomeInFlight.Retryable()).To(BeTrue())
		})
	})

	Describe("Submit", func() {
		It("keeps processing after the submitting context is cancelled", func() {
			processor.block = make(chan struct{})
			reqCtx, cancel := context.WithCancel(ctx)

			w.Submit(reqCtx, mention("t1"))
			cancel()
			close(processor.block)
			w.Wait()

			Expect(processor.processed()).To(HaveLen(1))
		})
	})

	Describe("Run", func() {
		BeforeEach(func() {
			cfg.Interval = 10 * time.Millisecond
		})

		It("polls repeatedly until stopped", func() {
			done := make(chan error, 1)
			go func() { done <- w.Run(ctx) }()

			Eventually(func() int {
				inbox.mu.Lock()
				defer inbox.mu.Unlock()
				return inbox.calls
			}).Should(BeNumerically(">=", 3))

			w.Stop()
			Eventually(done).Should(Receive(BeNil()))
		})

		It("returns when the context is cancelled", func() {
			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- w.Run(runCtx) }()

			cancel()

			Eventually(done).Should(Receive(MatchError(context.Canceled)))
		})
	})
})
