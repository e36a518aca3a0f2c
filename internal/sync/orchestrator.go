// Package sync implements the Sync Orchestrator (C7): it translates one
// provider's configuration into a graph of scrape jobs submitted through a
// Job Pool handle, fetching accounts, cards, balances, pending
// transactions, standing orders, direct debits and month-sharded
// transaction history, and writing every result through the Atomic Store.
//
// Grounded on original_source/gocardless/src/sync.rs (provider A: eager
// per-account writes, `by_month` bucketing with an undated fallback) and
// original_source/src/sync.rs (provider B: the many-per-month-calls
// strategy, iterating calendar month starts zipped with the following
// month's start minus a day).
package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cstorey/bankmirror/internal/clock"
	"github.com/cstorey/bankmirror/internal/httpenv"
	"github.com/cstorey/bankmirror/internal/jobpool"
	"github.com/cstorey/bankmirror/internal/logging"
	"github.com/cstorey/bankmirror/internal/store"
)

// MonthStrategy selects between the two acceptable ways of sharding
// transaction history by month (spec.md §9 Open question, SPEC_FULL.md §4:
// both are implemented, selectable per provider).
type MonthStrategy int

const (
	// PerMonthCalls issues one upstream call per month bucket (provider B's
	// original strategy).
	PerMonthCalls MonthStrategy = iota
	// RangeThenBucket issues a single call across the whole range and
	// partitions the result client-side (provider A's original strategy,
	// generalized here to be available to either provider).
	RangeThenBucket
)

// ProviderConfig is the subset of Config (spec.md §3 "Provider
// configuration") the Orchestrator consumes directly.
type ProviderConfig struct {
	Name        string
	ConsentID   string
	OutputDir   string
	HistoryDays int

	FetchInfo     bool
	FetchAccounts bool
	FetchCards    bool

	// FreshSession gates the standing-orders/direct-debits jobs, which
	// only need to run once per linked session rather than on every sync
	// (spec.md §4.7 step 4: "optionally, when the session is fresh").
	FreshSession bool

	MonthStrategy MonthStrategy
}

// Orchestrator drives one provider's sync run to completion by submitting
// jobs to a Job Pool handle. Run itself makes only the consent-status and
// account/card listing calls; every other HTTP call and every filesystem
// write happens inside the jobs it spawns.
type Orchestrator struct {
	Config    ProviderConfig
	Client    *httpenv.Client
	Endpoints Endpoints
	Clock     clock.Clock
	Store     *store.Store
	Handle    *jobpool.Handle
}

// Run enqueues the full job graph for one sync pass and returns once every
// root-level submission has been made. Completion of the underlying work
// is observed by the caller's Pool.Run, not by this method (spec.md §4.7:
// "the Orchestrator holds a single Handle and drops it after enqueuing").
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.Handle.Close()

	linked, accountIDs, err := o.Endpoints.ConsentStatus(ctx, o.Client, o.Config.ConsentID)
	if err != nil {
		return fmt.Errorf("fetch consent status: %w", err)
	}
	if !linked {
		return fmt.Errorf("sync: consent %q is not linked", o.Config.ConsentID)
	}

	start, end := ComputeRange(o.Clock.Now(), o.Config.HistoryDays)
	logging.Info().Str("provider", o.Config.Name).Time("start", start).Time("end", end).Msg("computed scrape range")

	if o.Config.FetchInfo {
		if err := o.Handle.Spawn(o.userInfoJob()); err != nil {
			return err
		}
	}

	if o.Config.FetchAccounts {
		ids := accountIDs
		if len(ids) == 0 {
			ids, err = o.Endpoints.Accounts(ctx, o.Client)
			if err != nil {
				return fmt.Errorf("list accounts: %w", err)
			}
		}
		for _, id := range ids {
			if err := o.Handle.Spawn(o.accountJob(id, start, end, "accounts")); err != nil {
				return err
			}
		}
	}

	if o.Config.FetchCards {
		cardIDs, err := o.Endpoints.Cards(ctx, o.Client)
		if err != nil {
			return fmt.Errorf("list cards: %w", err)
		}
		for _, id := range cardIDs {
			if err := o.Handle.Spawn(o.cardJob(id, start, end)); err != nil {
				return err
			}
		}
	}

	return nil
}

func (o *Orchestrator) userInfoJob() jobpool.Job {
	return func(ctx context.Context) error {
		info, err := o.Endpoints.UserInfo(ctx, o.Client)
		if err != nil {
			return fmt.Errorf("fetch user info: %w", err)
		}
		return o.Store.WriteJSON(filepath.Join(o.Config.OutputDir, "user-info.jsonl"), info)
	}
}

// accountJob writes the account's own record, then spawns its
// balance/pending/standing-orders/direct-debits/transactions children
// through its own Handle clone so the pool only terminates once every
// descendant has drained (spec.md §4.7 step 4, §9 "dynamic job graph").
func (o *Orchestrator) accountJob(accountID string, start, end time.Time, kind string) jobpool.Job {
	h := o.Handle.Clone()
	return func(ctx context.Context) error {
		defer h.Close()

		details, err := o.Endpoints.AccountDetails(ctx, o.Client, accountID)
		if err != nil {
			return fmt.Errorf("fetch account %s details: %w", accountID, err)
		}
		key, err := AccountKey(details)
		if err != nil {
			return fmt.Errorf("derive account key for %s: %w", accountID, err)
		}
		base := filepath.Join(o.Config.OutputDir, kind, key)

		if err := o.Store.WriteJSON(filepath.Join(base, "account.jsonl"), details); err != nil {
			return err
		}

		if err := h.Spawn(o.balanceJob(base, accountID)); err != nil {
			return err
		}
		if err := h.Spawn(o.pendingJob(base, accountID)); err != nil {
			return err
		}
		if o.Config.FreshSession {
			if err := h.Spawn(o.standingOrdersJob(base, accountID)); err != nil {
				return err
			}
			if err := h.Spawn(o.directDebitsJob(base, accountID)); err != nil {
				return err
			}
		}
		return o.spawnTransactionJobs(h, base, accountID, start, end, false)
	}
}

func (o *Orchestrator) cardJob(cardID string, start, end time.Time) jobpool.Job {
	h := o.Handle.Clone()
	return func(ctx context.Context) error {
		defer h.Close()
		base := filepath.Join(o.Config.OutputDir, "cards", cardID)

		if err := h.Spawn(func(ctx context.Context) error {
			bal, err := o.Endpoints.CardBalance(ctx, o.Client, cardID)
			if err != nil {
				return fmt.Errorf("fetch card %s balance: %w", cardID, err)
			}
			return o.Store.WriteJSON(filepath.Join(base, "balance.jsonl"), bal)
		}); err != nil {
			return err
		}
		if err := h.Spawn(func(ctx context.Context) error {
			pend, err := o.Endpoints.CardPending(ctx, o.Client, cardID)
			if err != nil {
				return fmt.Errorf("fetch card %s pending: %w", cardID, err)
			}
			return o.Store.WriteJSON(filepath.Join(base, "pending.jsonl"), pend)
		}); err != nil {
			return err
		}
		return o.spawnTransactionJobs(h, base, cardID, start, end, true)
	}
}

func (o *Orchestrator) balanceJob(base, accountID string) jobpool.Job {
	return func(ctx context.Context) error {
		bal, err := o.Endpoints.AccountBalance(ctx, o.Client, accountID)
		if err != nil {
			return fmt.Errorf("fetch account %s balance: %w", accountID, err)
		}
		return o.Store.WriteJSON(filepath.Join(base, "balance.jsonl"), bal)
	}
}

func (o *Orchestrator) pendingJob(base, accountID string) jobpool.Job {
	return func(ctx context.Context) error {
		pend, err := o.Endpoints.AccountPending(ctx, o.Client, accountID)
		if err != nil {
			return fmt.Errorf("fetch account %s pending: %w", accountID, err)
		}
		return o.Store.WriteJSON(filepath.Join(base, "pending.jsonl"), pend)
	}
}

func (o *Orchestrator) standingOrdersJob(base, accountID string) jobpool.Job {
	return func(ctx context.Context) error {
		rec, ok, err := o.Endpoints.AccountStandingOrders(ctx, o.Client, accountID)
		if err != nil {
			return fmt.Errorf("fetch account %s standing orders: %w", accountID, err)
		}
		if !ok {
			return nil
		}
		return o.Store.WriteJSON(filepath.Join(base, "standing-orders.jsonl"), rec)
	}
}

func (o *Orchestrator) directDebitsJob(base, accountID string) jobpool.Job {
	return func(ctx context.Context) error {
		rec, ok, err := o.Endpoints.AccountDirectDebits(ctx, o.Client, accountID)
		if err != nil {
			return fmt.Errorf("fetch account %s direct debits: %w", accountID, err)
		}
		if !ok {
			return nil
		}
		return o.Store.WriteJSON(filepath.Join(base, "direct-debits.jsonl"), rec)
	}
}

// spawnTransactionJobs fans out the history fetch according to the
// configured MonthStrategy.
func (o *Orchestrator) spawnTransactionJobs(h *jobpool.Handle, base, id string, start, end time.Time, isCard bool) error {
	switch o.Config.MonthStrategy {
	case RangeThenBucket:
		return h.Spawn(o.rangeThenBucketJob(base, id, start, end, isCard))
	default:
		for _, bucket := range MonthBuckets(start, end) {
			bucket := bucket
			if err := h.Spawn(o.perMonthJob(base, id, bucket, isCard)); err != nil {
				return err
			}
		}
		return nil
	}
}

// perMonthJob fetches one calendar month's transactions directly from the
// upstream, reverses them into oldest-first order (upstream returns
// newest-first) and writes the month file. An empty month produces no file
// (spec.md §8 boundary behavior).
func (o *Orchestrator) perMonthJob(base, id string, bucket Bucket, isCard bool) jobpool.Job {
	return func(ctx context.Context) error {
		var booked, pending []Record
		var err error
		if isCard {
			booked, pending, err = o.Endpoints.CardTransactions(ctx, o.Client, id, bucket.Start, bucket.End)
		} else {
			booked, pending, err = o.Endpoints.AccountTransactions(ctx, o.Client, id, bucket.Start, bucket.End)
		}
		if err != nil {
			return fmt.Errorf("fetch transactions for %s %s: %w", id, MonthKey(bucket.Start), err)
		}
		if len(booked) == 0 {
			return nil
		}
		reverse(booked)
		return o.Store.WriteJSONL(filepath.Join(base, MonthKey(bucket.Start)+".jsonl"), toAny(booked))
	}
}

// rangeThenBucketJob fetches the entire range in one call and buckets the
// result client-side by each record's indexed date fields, falling back to
// an undated.jsonl bucket for records with none of the three (spec.md §4.7
// step 5, §8).
func (o *Orchestrator) rangeThenBucketJob(base, id string, start, end time.Time, isCard bool) jobpool.Job {
	return func(ctx context.Context) error {
		var booked, pending []Record
		var err error
		if isCard {
			booked, pending, err = o.Endpoints.CardTransactions(ctx, o.Client, id, start, end)
		} else {
			booked, pending, err = o.Endpoints.AccountTransactions(ctx, o.Client, id, start, end)
		}
		if err != nil {
			return fmt.Errorf("fetch transactions for %s: %w", id, err)
		}

		buckets := map[string][]Record{}
		var undated []Record
		for _, rec := range append(append([]Record{}, booked...), pending...) {
			date, ok := TransactionBucketDate(rec)
			if !ok {
				undated = append(undated, rec)
				continue
			}
			key := MonthKey(date)
			buckets[key] = append(buckets[key], rec)
		}

		for key, recs := range buckets {
			reverse(recs)
			if err := o.Store.WriteJSONL(filepath.Join(base, key+".jsonl"), toAny(recs)); err != nil {
				return err
			}
		}
		if len(undated) > 0 {
			if err := o.Store.WriteJSONL(filepath.Join(base, "undated.jsonl"), toAny(undated)); err != nil {
				return err
			}
		}
		return nil
	}
}

func reverse(recs []Record) {
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
}

func toAny(recs []Record) []any {
	out := make([]any, len(recs))
	for i, r := range recs {
		out[i] = r
	}
	return out
}
