// Package openfinance provides domain services for syncing financial data
package openfinance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"budgetwatch/internal/domain/account"
	"budgetwatch/internal/domain/institution"
	ofclient "budgetwatch/internal/infrastructure/openfinance"
	"budgetwatch/internal/shared/batch"
	"budgetwatch/internal/shared/errs"
)

// StageAccounts names the account refresh stage in reports.
const StageAccounts = "account_refresh"

// ErrLinkReauthRequired is returned when the provider no longer accepts the
// link's access token. The user has to reconnect the institution.
var ErrLinkReauthRequired = errors.New("institution link requires re-authentication")

// SyncResult contains the results of a sync operation
type SyncResult struct {
	LinkID        int64
	AccountsFound int
	Created       int
	Updated       int
	Skipped       int
	Errors        []string
}

// AccountSyncService keeps the accounts of institution links in step with the provider
type AccountSyncService struct {
	client         ofclient.ClientInterface
	accountService *account.Service
	links          institution.Repository
	pool           *batch.Pool
}

// NewAccountSyncService creates a new account sync service
func NewAccountSyncService(
	client ofclient.ClientInterface,
	accountService *account.Service,
	links institution.Repository,
	pool *batch.Pool,
) *AccountSyncService {
	return &AccountSyncService{
		client:         client,
		accountService: accountService,
		links:          links,
		pool:           pool,
	}
}

// RefreshAll refreshes the balances of every link. Each link is its own
// entity in the report.
func (s *AccountSyncService) RefreshAll(ctx context.Context) *batch.Report {
	links, err := s.links.List(ctx)
	if err != nil {
		report := batch.NewReport(StageAccounts, 0)
		report.Abort(errs.Persistence("list links", err))
		log.Printf("Account refresh: failed to list links: %v", err)
		return report
	}

	jobs := make([]batch.Job, 0, len(links))
	for _, link := range links {
		jobs = append(jobs, &linkJob{link: link, service: s})
	}
	return s.pool.Run(ctx, StageAccounts, jobs)
}

// PopulateLink creates the accounts of a freshly connected link. Accounts
// already known are refreshed instead.
func (s *AccountSyncService) PopulateLink(ctx context.Context, link *institution.Link) (*SyncResult, error) {
	resp, err := s.fetchBalances(ctx, link, nil)
	if err != nil {
		return &SyncResult{LinkID: link.ID, Errors: []string{}}, err
	}

	result := &SyncResult{LinkID: link.ID, AccountsFound: len(resp.Accounts), Errors: []string{}}
	log.Printf("Link %d: Populating %d accounts", link.ID, result.AccountsFound)

	var failures []error
	for _, snapshot := range resp.Accounts {
		if err := s.populateAccount(ctx, link, snapshot, result); err != nil {
			failures = append(failures, err)
			result.Errors = append(result.Errors, fmt.Sprintf("account %s: %v", snapshot.AccountID, err))
			log.Printf("Link %d: failed to populate account %s: %v", link.ID, snapshot.AccountID, err)
		}
	}

	log.Printf("Link %d: Populate complete - Created: %d, Updated: %d, Skipped: %d, Errors: %d",
		link.ID, result.Created, result.Updated, result.Skipped, len(result.Errors))

	return result, joinFailures(failures, result.AccountsFound)
}

// RefreshLink updates the balances of the link's stored accounts. A link
// with no stored accounts yet is populated.
func (s *AccountSyncService) RefreshLink(ctx context.Context, link *institution.Link) (*SyncResult, error) {
	stored, err := s.accountService.ListByInstitution(ctx, link.ID)
	if err != nil {
		return &SyncResult{LinkID: link.ID, Errors: []string{}}, errs.Persistence("list accounts", err)
	}
	if len(stored) == 0 {
		return s.PopulateLink(ctx, link)
	}

	ids := make([]string, 0, len(stored))
	for _, acc := range stored {
		ids = append(ids, acc.ExternalID)
	}

	resp, err := s.fetchBalances(ctx, link, ids)
	if err != nil {
		return &SyncResult{LinkID: link.ID, Errors: []string{}}, err
	}

	snapshots := make(map[string]ofclient.Account, len(resp.Accounts))
	for _, a := range resp.Accounts {
		snapshots[a.AccountID] = a
	}

	result := &SyncResult{LinkID: link.ID, AccountsFound: len(resp.Accounts), Errors: []string{}}

	var failures []error
	for _, acc := range stored {
		snapshot, ok := snapshots[acc.ExternalID]
		if !ok {
			err := errs.Provider("get_balances", fmt.Errorf("account %s missing from response", acc.ExternalID))
			failures = append(failures, err)
			result.Errors = append(result.Errors, err.Error())
			log.Printf("Link %d: %v", link.ID, err)
			continue
		}
		if err := s.refreshAccount(ctx, acc, snapshot, result); err != nil {
			failures = append(failures, err)
			result.Errors = append(result.Errors, fmt.Sprintf("account %d: %v", acc.ID, err))
			log.Printf("Link %d: failed to refresh account %d: %v", link.ID, acc.ID, err)
		}
	}

	log.Printf("Link %d: Refresh complete - Updated: %d, Skipped: %d, Errors: %d",
		link.ID, result.Updated, result.Skipped, len(result.Errors))

	return result, joinFailures(failures, len(stored))
}

func (s *AccountSyncService) fetchBalances(ctx context.Context, link *institution.Link, accountIDs []string) (*ofclient.BalanceResponse, error) {
	resp, err := s.client.GetBalances(ctx, link.AccessToken, accountIDs)
	if err != nil {
		var apiErr *ofclient.APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.ErrorCode == "ITEM_LOGIN_REQUIRED") {
			log.Printf("Link %d: provider rejected the access token, user must reconnect", link.ID)
			return nil, errs.Provider("get_balances", fmt.Errorf("%w: %v", ErrLinkReauthRequired, err))
		}
		return nil, errs.Provider("get_balances", err)
	}
	return resp, nil
}

// populateAccount creates or refreshes one account from its snapshot
func (s *AccountSyncService) populateAccount(ctx context.Context, link *institution.Link, snapshot ofclient.Account, result *SyncResult) error {
	if snapshot.Balances.Current == nil {
		result.Skipped++
		log.Printf("Link %d: Skipping account %s without a current balance", link.ID, snapshot.AccountID)
		return nil
	}

	existing, err := s.accountService.FindByExternalID(ctx, snapshot.AccountID)
	if err != nil {
		return errs.Persistence("find account", err)
	}
	if existing != nil {
		return s.refreshAccount(ctx, existing, snapshot, result)
	}

	balances, err := toBalances(snapshot)
	if err != nil {
		return err
	}

	name := snapshot.Name
	if name == "" {
		name = snapshot.OfficialName
	}

	created, err := s.accountService.CreateAccount(ctx, account.CreateParams{
		InstitutionID: link.ID,
		ExternalID:    snapshot.AccountID,
		Name:          name,
		Subtype:       snapshot.Subtype,
		Balances:      balances,
	})
	if err != nil {
		return errs.Persistence("create account", err)
	}

	result.Created++
	log.Printf("Link %d: Created account %s (%s, trackable=%t)", link.ID, created.Name, snapshot.AccountID, created.Trackable)
	return nil
}

func (s *AccountSyncService) refreshAccount(ctx context.Context, acc *account.Account, snapshot ofclient.Account, result *SyncResult) error {
	if snapshot.Balances.Current == nil {
		result.Skipped++
		log.Printf("Account %d: provider sent no current balance, keeping stored values", acc.ID)
		return nil
	}

	balances, err := toBalances(snapshot)
	if err != nil {
		return err
	}

	if err := s.accountService.RefreshBalances(ctx, acc, balances); err != nil {
		return err
	}

	result.Updated++
	return nil
}

// toBalances converts a provider snapshot into the balance variant of its type
func toBalances(snapshot ofclient.Account) (account.Balances, error) {
	b := snapshot.Balances
	balances, err := account.NewBalances(snapshot.Type, b.Available, b.Current, b.Limit)
	if err != nil {
		if errors.Is(err, account.ErrUnknownAccountType) {
			return nil, errs.Invalid("type", fmt.Sprintf("unknown account type %q", snapshot.Type))
		}
		return nil, errs.Invalid("balances", err.Error())
	}
	return balances, nil
}

// joinFailures folds per-account errors into one link error
func joinFailures(failures []error, total int) error {
	if len(failures) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d accounts failed: %w", len(failures), total, errors.Join(failures...))
}

// linkJob implements batch.Job for one institution link
type linkJob struct {
	link    *institution.Link
	service *AccountSyncService
}

func (j *linkJob) Execute(ctx context.Context) error {
	_, err := j.service.RefreshLink(ctx, j.link)
	return err
}

func (j *linkJob) EntityID() string {
	return fmt.Sprintf("link:%d", j.link.ID)
}

func (j *linkJob) Description() string {
	return fmt.Sprintf("Account refresh for link %d (%s)", j.link.ID, j.link.Name)
}
