package redemption

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/audit"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/identity"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/logging"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/notification"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/rail"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/verification"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/voucher"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/wallet"
)

type stubRail struct {
	err error
}

func (r stubRail) Execute(context.Context, rail.Payout) (rail.Receipt, error) {
	if r.err != nil {
		return rail.Receipt{}, r.err
	}
	return rail.Receipt{Reference: "rail-ref-1", Status: "accepted"}, nil
}

// flakyRail fails the first n calls, then accepts.
type flakyRail struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (r *flakyRail) Execute(context.Context, rail.Payout) (rail.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failures {
		return rail.Receipt{}, rail.ErrUnavailable
	}
	return rail.Receipt{Reference: "rail-ref-1", Status: "accepted"}, nil
}

type downAuditStore struct{}

func (downAuditStore) Append(context.Context, audit.Entry) error {
	return errors.New("audit store down")
}

func (downAuditStore) ListByType(context.Context, string, time.Time, time.Time) ([]audit.Entry, error) {
	return nil, errors.New("audit store down")
}

type alertRecorder struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (n *alertRecorder) Send(_ context.Context, m notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, m)
	return nil
}

func (n *alertRecorder) byKind(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, m := range n.msgs {
		if m.Kind == kind {
			count++
		}
	}
	return count
}

type fixture struct {
	service  *Service
	tokens   *verification.TokenService
	wallets  *wallet.Service
	vouchers voucher.Repository
	subject  identity.User
}

func newFixture(t *testing.T, railConn rail.Rail) *fixture {
	t.Helper()
	log := logging.Discard()
	return newFixtureWith(t, railConn, audit.NewMemoryStore(), notification.NewLoggerNotifier(log))
}

func newFixtureWith(t *testing.T, railConn rail.Rail, store audit.Store, notifier notification.Notifier) *fixture {
	t.Helper()
	ctx := context.Background()

	identityRepo := identity.NewMemoryRepository()
	subject := identity.User{ID: uuid.NewString(), Phone: "+264811234567", StepUpEnabled: true, CreatedAt: time.Now().UTC()}
	if err := identityRepo.Create(ctx, subject); err != nil {
		t.Fatalf("create user: %v", err)
	}

	log := logging.Discard()
	recorder := audit.NewRecorder(store, notifier, log)
	walletSvc := wallet.NewService(wallet.NewMemoryRepository(), recorder)
	tokenSvc := verification.NewTokenService(identityRepo, verification.NewMemoryStore(), 5*time.Minute, log)
	voucherRepo := voucher.NewMemoryRepository()

	svc := NewService(NewMemoryRepository(), voucherRepo, walletSvc, tokenSvc, railConn,
		recorder, notifier, time.Second, log)
	svc.railBackoff = time.Millisecond

	return &fixture{service: svc, tokens: tokenSvc, wallets: walletSvc, vouchers: voucherRepo, subject: subject}
}

func (f *fixture) addVoucher(t *testing.T, amount int64) voucher.Voucher {
	t.Helper()
	v := voucher.Voucher{
		ID:        uuid.NewString(),
		OwnerID:   f.subject.ID,
		Amount:    amount,
		Currency:  "NAD",
		Status:    voucher.StatusAvailable,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.vouchers.Create(context.Background(), v); err != nil {
		t.Fatalf("create voucher: %v", err)
	}
	return v
}

func (f *fixture) addWallet(t *testing.T, ownerID string, balance int64) wallet.Wallet {
	t.Helper()
	w, err := f.wallets.Create(context.Background(), wallet.CreateInput{OwnerID: ownerID})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if balance > 0 {
		if w, err = f.wallets.Credit(context.Background(), w.ID, balance); err != nil {
			t.Fatalf("fund wallet: %v", err)
		}
	}
	return w
}

func (f *fixture) issueToken(t *testing.T, method Method, amount int64, targetID string) string {
	t.Helper()
	token, err := f.tokens.Issue(context.Background(), f.subject.ID, verification.Context{
		Type:     "redemption:" + string(method),
		Amount:   amount,
		TargetID: targetID,
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token.ID
}

func TestRedeemVoucherToWallet(t *testing.T) {
	f := newFixture(t, stubRail{})
	v := f.addVoucher(t, 50000)
	dest := f.addWallet(t, f.subject.ID, 0)

	tx, err := f.service.Redeem(context.Background(), Request{
		SubjectID:           f.subject.ID,
		IdempotencyKey:      uuid.NewString(),
		VoucherID:           v.ID,
		DestinationWalletID: dest.ID,
		Method:              MethodWallet,
		Amount:              50000,
		VerificationTokenID: f.issueToken(t, MethodWallet, 50000, v.ID),
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if tx.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", tx.Status, tx.FailureReason)
	}

	funded, err := f.wallets.Get(context.Background(), dest.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if funded.Balance != 50000 {
		t.Fatalf("expected balance 50000, got %d", funded.Balance)
	}
	claimed, err := f.vouchers.Get(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("get voucher: %v", err)
	}
	if claimed.Status != voucher.StatusRedeemed || claimed.RedeemedAt == nil {
		t.Fatalf("expected voucher redeemed, got %s", claimed.Status)
	}
}

func TestRedeemReplaysTerminalResult(t *testing.T) {
	f := newFixture(t, stubRail{})
	v := f.addVoucher(t, 50000)
	dest := f.addWallet(t, f.subject.ID, 0)

	req := Request{
		SubjectID:           f.subject.ID,
		IdempotencyKey:      uuid.NewString(),
		VoucherID:           v.ID,
		DestinationWalletID: dest.ID,
		Method:              MethodWallet,
		Amount:              50000,
		VerificationTokenID: f.issueToken(t, MethodWallet, 50000, v.ID),
	}
	first, err := f.service.Redeem(context.Background(), req)
	if err != nil {
		t.Fatalf("first redeem: %v", err)
	}

	// The token is consumed, but the replay must short-circuit on the stored
	// transaction before any validation and move no money.
	replay, err := f.service.Redeem(context.Background(), req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.Status != first.Status || replay.ID != first.ID {
		t.Fatalf("expected identical terminal result on replay")
	}

	funded, err := f.wallets.Get(context.Background(), dest.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if funded.Balance != 50000 {
		t.Fatalf("replay must not credit twice, balance %d", funded.Balance)
	}
}

func TestRedeemRejectsMismatchedToken(t *testing.T) {
	f := newFixture(t, stubRail{})
	v := f.addVoucher(t, 50000)
	dest := f.addWallet(t, f.subject.ID, 0)

	tx, err := f.service.Redeem(context.Background(), Request{
		SubjectID:           f.subject.ID,
		IdempotencyKey:      uuid.NewString(),
		VoucherID:           v.ID,
		DestinationWalletID: dest.ID,
		Method:              MethodWallet,
		Amount:              50000,
		// Token bound to a different amount must not authorize this request.
		VerificationTokenID: f.issueToken(t, MethodWallet, 40000, v.ID),
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if tx.Status != StatusFailed || tx.FailureReason != ReasonInvalidVerification {
		t.Fatalf("expected invalid verification failure, got %s (%s)", tx.Status, tx.FailureReason)
	}

	untouched, err := f.vouchers.Get(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("get voucher: %v", err)
	}
	if untouched.Status != voucher.StatusAvailable {
		t.Fatalf("voucher must stay available, got %s", untouched.Status)
	}
}

func TestWalletRedemptionInsufficientFunds(t *testing.T) {
	f := newFixture(t, stubRail{})
	source := f.addWallet(t, f.subject.ID, 1000)

	tx, err := f.service.Redeem(context.Background(), Request{
		SubjectID:           f.subject.ID,
		IdempotencyKey:      uuid.NewString(),
		SourceWalletID:      source.ID,
		Destination:         "agent-0042",
		Method:              MethodCashOut,
		Amount:              5000,
		VerificationTokenID: f.issueToken(t, MethodCashOut, 5000, source.ID),
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if tx.Status != StatusFailed || tx.FailureReason != ReasonInsufficientFunds {
		t.Fatalf("expected insufficient funds failure, got %s (%s)", tx.Status, tx.FailureReason)
	}

	w, err := f.wallets.Get(context.Background(), source.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 1000 {
		t.Fatalf("expected balance untouched, got %d", w.Balance)
	}
}

func TestRailFailureRevertsVoucherClaim(t *testing.T) {
	f := newFixture(t, stubRail{err: rail.ErrUnavailable})
	v := f.addVoucher(t, 50000)

	tx, err := f.service.Redeem(context.Background(), Request{
		SubjectID:           f.subject.ID,
		IdempotencyKey:      uuid.NewString(),
		VoucherID:           v.ID,
		Destination:         "agent-0042",
		Method:              MethodCashOut,
		Amount:              50000,
		VerificationTokenID: f.issueToken(t, MethodCashOut, 50000, v.ID),
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if tx.Status != StatusFailed || tx.FailureReason != ReasonUpstreamUnavailable {
		t.Fatalf("expected upstream unavailable failure, got %s (%s)", tx.Status, tx.FailureReason)
	}

	reverted, err := f.vouchers.Get(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("get voucher: %v", err)
	}
	if reverted.Status != voucher.StatusAvailable || reverted.RedeemedAt != nil {
		t.Fatalf("expected voucher claim reverted, got %s", reverted.Status)
	}
}

func TestRailFailureRefundsWalletDebit(t *testing.T) {
	f := newFixture(t, stubRail{err: rail.ErrUnavailable})
	source := f.addWallet(t, f.subject.ID, 10000)

	tx, err := f.service.Redeem(context.Background(), Request{
		SubjectID:           f.subject.ID,
		IdempotencyKey:      uuid.NewString(),
		SourceWalletID:      source.ID,
		Destination:         "BW-7654321",
		Method:              MethodBankTransfer,
		Amount:              4000,
		VerificationTokenID: f.issueToken(t, MethodBankTransfer, 4000, source.ID),
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if tx.Status != StatusFailed || tx.FailureReason != ReasonUpstreamUnavailable {
		t.Fatalf("expected upstream unavailable failure, got %s (%s)", tx.Status, tx.FailureReason)
	}

	w, err := f.wallets.Get(context.Background(), source.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 10000 {
		t.Fatalf("expected debit refunded, balance %d", w.Balance)
	}
}

func TestRailRetriedOnTransientFailure(t *testing.T) {
	railConn := &flakyRail{failures: 1}
	f := newFixture(t, railConn)
	source := f.addWallet(t, f.subject.ID, 10000)

	tx, err := f.service.Redeem(context.Background(), Request{
		SubjectID:           f.subject.ID,
		IdempotencyKey:      uuid.NewString(),
		SourceWalletID:      source.ID,
		Destination:         "agent-0042",
		Method:              MethodCashOut,
		Amount:              4000,
		VerificationTokenID: f.issueToken(t, MethodCashOut, 4000, source.ID),
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if tx.Status != StatusCompleted {
		t.Fatalf("expected completed after retry, got %s (%s)", tx.Status, tx.FailureReason)
	}
	if railConn.calls != 2 {
		t.Fatalf("expected 2 rail attempts, got %d", railConn.calls)
	}

	w, err := f.wallets.Get(context.Background(), source.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 6000 {
		t.Fatalf("expected balance 6000, got %d", w.Balance)
	}
}

func TestRailRetriesAreBounded(t *testing.T) {
	railConn := &flakyRail{failures: 100}
	f := newFixture(t, railConn)
	source := f.addWallet(t, f.subject.ID, 10000)

	tx, err := f.service.Redeem(context.Background(), Request{
		SubjectID:           f.subject.ID,
		IdempotencyKey:      uuid.NewString(),
		SourceWalletID:      source.ID,
		Destination:         "agent-0042",
		Method:              MethodCashOut,
		Amount:              4000,
		VerificationTokenID: f.issueToken(t, MethodCashOut, 4000, source.ID),
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if tx.Status != StatusFailed || tx.FailureReason != ReasonUpstreamUnavailable {
		t.Fatalf("expected upstream unavailable failure, got %s (%s)", tx.Status, tx.FailureReason)
	}
	if railConn.calls != defaultRailAttempts {
		t.Fatalf("expected %d rail attempts, got %d", defaultRailAttempts, railConn.calls)
	}

	w, err := f.wallets.Get(context.Background(), source.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 10000 {
		t.Fatalf("expected debit refunded, balance %d", w.Balance)
	}
}

func TestDestinationCreditFailureRevertsVoucher(t *testing.T) {
	f := newFixture(t, stubRail{})
	v := f.addVoucher(t, 50000)

	tx, err := f.service.Redeem(context.Background(), Request{
		SubjectID:           f.subject.ID,
		IdempotencyKey:      uuid.NewString(),
		VoucherID:           v.ID,
		DestinationWalletID: uuid.NewString(),
		Method:              MethodWallet,
		Amount:              50000,
		VerificationTokenID: f.issueToken(t, MethodWallet, 50000, v.ID),
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if tx.Status != StatusFailed || tx.FailureReason != ReasonDestinationUnavailable {
		t.Fatalf("expected destination unavailable failure, got %s (%s)", tx.Status, tx.FailureReason)
	}

	reverted, err := f.vouchers.Get(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("get voucher: %v", err)
	}
	if reverted.Status != voucher.StatusAvailable {
		t.Fatalf("expected voucher claim reverted, got %s", reverted.Status)
	}
}

func TestConcurrentSameKeyCreditsOnce(t *testing.T) {
	f := newFixture(t, stubRail{})
	v := f.addVoucher(t, 50000)
	dest := f.addWallet(t, f.subject.ID, 0)

	req := Request{
		SubjectID:           f.subject.ID,
		IdempotencyKey:      uuid.NewString(),
		VoucherID:           v.ID,
		DestinationWalletID: dest.ID,
		Method:              MethodWallet,
		Amount:              50000,
		VerificationTokenID: f.issueToken(t, MethodWallet, 50000, v.ID),
	}

	const callers = 8
	results := make([]Transaction, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.service.Redeem(context.Background(), req)
		}(i)
	}
	wg.Wait()

	terminal := 0
	for i := 0; i < callers; i++ {
		switch {
		case errs[i] == nil:
			if results[i].ID != req.IdempotencyKey || results[i].Status != StatusCompleted {
				t.Fatalf("caller %d got %s (%s)", i, results[i].Status, results[i].FailureReason)
			}
			terminal++
		case errors.Is(errs[i], ErrInFlight):
			// Acceptable: the caller raced the first attempt and retries later.
		default:
			t.Fatalf("caller %d: %v", i, errs[i])
		}
	}
	if terminal == 0 {
		t.Fatalf("no caller observed the terminal result")
	}

	funded, err := f.wallets.Get(context.Background(), dest.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if funded.Balance != 50000 {
		t.Fatalf("concurrent replays must credit once, balance %d", funded.Balance)
	}
}

func TestRedeemCompletesWhenAuditStoreDown(t *testing.T) {
	alerts := &alertRecorder{}
	f := newFixtureWith(t, stubRail{}, downAuditStore{}, alerts)
	v := f.addVoucher(t, 50000)
	dest := f.addWallet(t, f.subject.ID, 0)

	tx, err := f.service.Redeem(context.Background(), Request{
		SubjectID:           f.subject.ID,
		IdempotencyKey:      uuid.NewString(),
		VoucherID:           v.ID,
		DestinationWalletID: dest.ID,
		Method:              MethodWallet,
		Amount:              50000,
		VerificationTokenID: f.issueToken(t, MethodWallet, 50000, v.ID),
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if tx.Status != StatusCompleted {
		t.Fatalf("audit outage must not fail the redemption, got %s (%s)", tx.Status, tx.FailureReason)
	}

	funded, err := f.wallets.Get(context.Background(), dest.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if funded.Balance != 50000 {
		t.Fatalf("expected balance 50000, got %d", funded.Balance)
	}
	if got := alerts.byKind(notification.KindAuditFailure); got == 0 {
		t.Fatalf("expected an audit failure alert, got none")
	}
}

func TestTokenNotReusableAcrossAttempts(t *testing.T) {
	f := newFixture(t, stubRail{err: rail.ErrUnavailable})
	source := f.addWallet(t, f.subject.ID, 10000)
	tokenID := f.issueToken(t, MethodCashOut, 4000, source.ID)

	base := Request{
		SubjectID:           f.subject.ID,
		SourceWalletID:      source.ID,
		Destination:         "agent-0042",
		Method:              MethodCashOut,
		Amount:              4000,
		VerificationTokenID: tokenID,
	}

	first := base
	first.IdempotencyKey = uuid.NewString()
	if _, err := f.service.Redeem(context.Background(), first); err != nil {
		t.Fatalf("first attempt: %v", err)
	}

	// The first attempt consumed the token even though the rail failed; a new
	// attempt needs a fresh proof of intent.
	second := base
	second.IdempotencyKey = uuid.NewString()
	tx, err := f.service.Redeem(context.Background(), second)
	if err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if tx.Status != StatusFailed || tx.FailureReason != ReasonInvalidVerification {
		t.Fatalf("expected invalid verification on token reuse, got %s (%s)", tx.Status, tx.FailureReason)
	}
}
