package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dfcbank/settlement-service/internal/domain"
)

// Fifty concurrent confirms against one account must drain it exactly, with
// one DEBIT record per reference and no lost updates.
func TestConfirmDebit_ConcurrentDebitsDoNotLoseUpdates(t *testing.T) {
	const workers = 50
	const amount = 100

	repo := newSettlementRepoStub()
	account := repo.addAccount("user-1", "Jane Doe", "ACC-1", workers*amount)
	repo.addToken("user-1", "token-hash-1", time.Now().Add(time.Hour))
	service, _ := newTestService(t, repo)
	ctx := context.Background()

	lockIDs := make([]string, workers)
	for i := 0; i < workers; i++ {
		referenceID := fmt.Sprintf("RC-%d", i)
		lockID, err := service.LockFunds(ctx, domain.DebitRequest{
			ReferenceID:         referenceID,
			Phase:               "lock",
			Amount:              domain.Amount{Value: amount},
			ConnectionTokenHash: "token-hash-1",
		})
		if err != nil {
			t.Fatalf("LockFunds(%s) returned error: %v", referenceID, err)
		}
		lockIDs[i] = lockID
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := service.ConfirmDebit(ctx, domain.DebitRequest{
				ReferenceID:         fmt.Sprintf("RC-%d", i),
				LockConfirmationID:  lockIDs[i],
				Amount:              domain.Amount{Value: amount},
				ConnectionTokenHash: "token-hash-1",
			})
			if err != nil {
				errs <- fmt.Errorf("confirm RC-%d: %w", i, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	if account.Balance != 0 {
		t.Fatalf("expected account drained to 0, got %d", account.Balance)
	}
	for i := 0; i < workers; i++ {
		if n := repo.countRecords(fmt.Sprintf("RC-%d", i), domain.TransactionDebit); n != 1 {
			t.Fatalf("expected one DEBIT record for RC-%d, got %d", i, n)
		}
	}
}
