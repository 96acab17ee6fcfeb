package reports

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	_ "github.com/meridian-erp/meridian-erp/testing"
)

type fakeTrialBalanceSource struct {
	tb    ledger.TrialBalance
	calls int
}

func (f *fakeTrialBalanceSource) TrialBalanceReport(ctx context.Context, asOf *time.Time) (ledger.TrialBalance, error) {
	f.calls++
	out := f.tb
	out.AsOf = asOf
	return out, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleTrialBalance() ledger.TrialBalance {
	return ledger.TrialBalance{
		Rows: []ledger.TrialBalanceRow{
			{AccountID: 2, Code: "1.2", Name: "Bank", Type: ledger.AccountTypeAsset, Debit: dec("900")},
			{AccountID: 1, Code: "1.1", Name: "Cash", Type: ledger.AccountTypeAsset, Debit: dec("100")},
			{AccountID: 3, Code: "2.1", Name: "Payables", Type: ledger.AccountTypeLiability, Credit: dec("400")},
			{AccountID: 4, Code: "40", Name: "Sales", Type: ledger.AccountTypeIncome, Credit: dec("600")},
		},
		TotalDebit:  dec("1000"),
		TotalCredit: dec("1000"),
		IsBalanced:  true,
	}
}

func TestGroupKey(t *testing.T) {
	assert.Equal(t, "1", groupKey("1.1"))
	assert.Equal(t, "12", groupKey("12.3.4"))
	assert.Equal(t, "40", groupKey("4010"))
	assert.Equal(t, "9", groupKey("9"))
}

func TestBuildTrialBalanceGroupsAndSorts(t *testing.T) {
	grouped := BuildTrialBalance(sampleTrialBalance())

	require.Len(t, grouped.Groups, 3)
	assert.Equal(t, "1", grouped.Groups[0].Key)
	assert.Equal(t, "2", grouped.Groups[1].Key)
	assert.Equal(t, "40", grouped.Groups[2].Key)

	assets := grouped.Groups[0]
	require.Len(t, assets.Accounts, 2)
	// Accounts inside a group sort by code.
	assert.Equal(t, "1.1", assets.Accounts[0].Code)
	assert.Equal(t, "1.2", assets.Accounts[1].Code)
	assert.True(t, assets.Debit.Equal(dec("1000")))
	assert.True(t, assets.Credit.IsZero())

	assert.True(t, grouped.TotalDebit.Equal(dec("1000")))
	assert.True(t, grouped.TotalCredit.Equal(dec("1000")))
	assert.True(t, grouped.IsBalanced)
	assert.Empty(t, grouped.AsOf)
}

func TestBuildTrialBalanceCarriesAsOf(t *testing.T) {
	asOf := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	tb := sampleTrialBalance()
	tb.AsOf = &asOf
	grouped := BuildTrialBalance(tb)
	assert.Equal(t, "2025-06-30", grouped.AsOf)
}

func TestTrialBalanceCachesUntilInvalidated(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	source := &fakeTrialBalanceSource{tb: sampleTrialBalance()}
	svc := NewService(source, NewCache(redisClient, time.Minute))
	ctx := context.Background()

	first, err := svc.TrialBalance(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
	assert.True(t, first.IsBalanced)

	second, err := svc.TrialBalance(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls, "second read must come from cache")
	assert.Equal(t, first, second)

	require.NoError(t, svc.Invalidate(ctx))

	_, err = svc.TrialBalance(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls, "bumped version must miss the old key")
}

func TestTrialBalanceServesFreshTotalsAfterBump(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	source := &fakeTrialBalanceSource{tb: sampleTrialBalance()}
	svc := NewService(source, NewCache(redisClient, time.Minute))
	ctx := context.Background()

	first, err := svc.TrialBalance(ctx, nil)
	require.NoError(t, err)
	assert.True(t, first.TotalDebit.Equal(dec("1000")))

	// The ledger moves underneath the cache. A posting bumps the version, so
	// the next read must reload instead of serving the stale snapshot.
	source.tb.Rows[1].Debit = dec("250")
	source.tb.Rows[3].Credit = dec("750")
	source.tb.TotalDebit = dec("1150")
	source.tb.TotalCredit = dec("1150")
	require.NoError(t, svc.Invalidate(ctx))

	fresh, err := svc.TrialBalance(ctx, nil)
	require.NoError(t, err)
	assert.True(t, fresh.TotalDebit.Equal(dec("1150")), "got %s", fresh.TotalDebit)
	assert.True(t, fresh.TotalCredit.Equal(dec("1150")))
}

func TestTrialBalanceSeparateKeysPerDate(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	source := &fakeTrialBalanceSource{tb: sampleTrialBalance()}
	svc := NewService(source, NewCache(redisClient, time.Minute))
	ctx := context.Background()

	_, err := svc.TrialBalance(ctx, nil)
	require.NoError(t, err)

	asOf := time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)
	dated, err := svc.TrialBalance(ctx, &asOf)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
	assert.Equal(t, "2025-05-31", dated.AsOf)
}

func TestTrialBalanceNilCachePassthrough(t *testing.T) {
	source := &fakeTrialBalanceSource{tb: sampleTrialBalance()}
	svc := NewService(source, nil)
	ctx := context.Background()

	_, err := svc.TrialBalance(ctx, nil)
	require.NoError(t, err)
	_, err = svc.TrialBalance(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls, "nil cache always hits the loader")

	assert.NoError(t, svc.Invalidate(ctx))
}

func TestCacheVersionInitialisesAndBumps(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := NewCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	key, err := cache.BuildKey(ctx, "reports", "tb", "current")
	require.NoError(t, err)
	assert.Equal(t, "reports:tb:current:1", key)

	require.NoError(t, cache.Bump(ctx))
	ver, err = cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ver)
}

func TestWriteTrialBalanceCSV(t *testing.T) {
	grouped := BuildTrialBalance(sampleTrialBalance())

	var buf bytes.Buffer
	require.NoError(t, WriteTrialBalanceCSV(&buf, grouped))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// Header, four accounts, three subtotals, one total.
	require.Len(t, lines, 9)
	assert.Equal(t, "Group,Code,Account,Type,Debit,Credit", lines[0])
	assert.Contains(t, lines[1], "1.1,Cash,ASSET,100.00,0.00")
	assert.Contains(t, lines[3], "Subtotal")
	assert.Contains(t, lines[3], `"1,000.00"`)
	assert.Contains(t, lines[8], "Total")
}
