package ledger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/courier/internal/ledger"
)

type mockLedgerStore struct {
	mu       sync.Mutex
	ids      []string
	loadErr  error
	appendFn func(ctx context.Context, id string) error
}

func (m *mockLedgerStore) Load(ctx context.Context) ([]string, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.ids, nil
}

func (m *mockLedgerStore) Append(ctx context.Context, id string) error {
	if m.appendFn != nil {
		return m.appendFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	return nil
}

func (m *mockLedgerStore) Close() error { return nil }

var _ = Describe("Ledger", func() {
	var (
		ctx   context.Context
		store *mockLedgerStore
		l     *ledger.Ledger
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = &mockLedgerStore{ids: []string{"IC_old"}}

		var err error
		l, err = ledger.New(ctx, store)
		Expect(err).NotTo(HaveOccurred())
	})

	It("is seeded from the store", func() {
		Expect(l.Committed("IC_old")).To(BeTrue())
		Expect(l.Claim("IC_old")).To(BeFalse())
		Expect(l.Len()).To(Equal(1))
	})

	It("fails to start when the store cannot be read", func() {
		_, err := ledger.New(ctx, &mockLedgerStore{loadErr: errors.New("disk gone")})

		Expect(err).To(HaveOccurred())
	})

	It("refuses a second claim while the first is in flight", func() {
		Expect(l.Claim("IC_1")).To(BeTrue())
		Expect(l.Claim("IC_1")).To(BeFalse())
		Expect(l.Committed("IC_1")).To(BeFalse())
	})

	It("persists committed ids", func() {
		Expect(l.Claim("IC_1")).To(BeTrue())
		Expect(l.Commit(ctx, "IC_1")).To(Succeed())

		Expect(l.Committed("IC_1")).To(BeTrue())
		Expect(l.Claim("IC_1")).To(BeFalse())
		Expect(store.ids).To(Equal([]string{"IC_old", "IC_1"}))
	})

	It("allows a retry after release", func() {
		Expect(l.Claim("IC_1")).To(BeTrue())
		l.Release("IC_1")

		Expect(l.Claim("IC_1")).To(BeTrue())
	})

	It("does not forget a commit on release", func() {
		Expect(l.Claim("IC_1")).To(BeTrue())
		Expect(l.Commit(ctx, "IC_1")).To(Succeed())
		l.Release("IC_1")

		Expect(l.Claim("IC_1")).To(BeFalse())
	})

	It("keeps the id committed in memory when persisting fails", func() {
		store.appendFn = func(ctx context.Context, id string) error { return errors.New("read-only fs") }
		Expect(l.Claim("IC_1")).To(BeTrue())

		Expect(l.Commit(ctx, "IC_1")).To(MatchError(ContainSubstring("read-only fs")))
		Expect(l.Claim("IC_1")).To(BeFalse())
	})

	It("grants exactly one of many concurrent claims", func() {
		for round := 0; round < 50; round++ {
			var wins atomic.Int32
			var wg sync.WaitGroup
			start := make(chan struct{})

			id := "IC_race"
			l.Release(id)
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					<-start
					if l.Claim(id) {
						wins.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			Expect(wins.Load()).To(Equal(int32(1)))
		}
	})
})
