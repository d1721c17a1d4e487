package reconcile

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alimghmi/sync-auth0-user/internal/auth0"
	"github.com/alimghmi/sync-auth0-user/internal/roster"
)

const defaultRolePrefix = "superset_"

var (
	errMissingAPI        = errors.New("management api is required")
	errMissingSource     = errors.New("record source is required")
	errMissingTable      = errors.New("table name is required")
	ErrInvalidReconciler = errors.New("reconcile: invalid config")
)

// ManagementAPI is the slice of the Auth0 client the reconciler
// drives. Declared here so tests can substitute a recording fake.
type ManagementAPI interface {
	Roles(ctx context.Context) ([]auth0.Role, error)
	ConnectionUsers(ctx context.Context) ([]auth0.User, error)
	UserRoles(ctx context.Context, userID string) ([]auth0.Role, error)
	CreateUser(ctx context.Context, email, password string) (string, error)
	DeleteUser(ctx context.Context, userID string) error
	AssignRole(ctx context.Context, userID, roleID string) error
	UnassignRole(ctx context.Context, userID, roleID string) error
}

// RecordSource supplies the authoritative roster.
type RecordSource interface {
	FetchAll(ctx context.Context, table string) ([]roster.UserRecord, error)
}

// Config describes one reconciliation run.
type Config struct {
	API         ManagementAPI
	Records     RecordSource
	Table       string
	Ignore      roster.IgnoreSet
	RolePrefix  string
	Limit       int
	Concurrency int
	DryRun      bool
	Logger      *zap.Logger
}

// Summary counts the mutations a run performed (or, under dry-run,
// would have performed).
type Summary struct {
	Added      int
	Deleted    int
	Reassigned int
	Skipped    int
}

// Reconciler converges the tenant's user pool onto the roster table:
// role corrections first, then account creation, then deletion.
type Reconciler struct {
	api         ManagementAPI
	records     RecordSource
	table       string
	ignore      roster.IgnoreSet
	rolePrefix  string
	limit       int
	concurrency int
	dryRun      bool
	logger      *zap.Logger
}

// New validates the configuration and returns a ready reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.API == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReconciler, errMissingAPI)
	}
	if cfg.Records == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReconciler, errMissingSource)
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReconciler, errMissingTable)
	}

	rolePrefix := cfg.RolePrefix
	if rolePrefix == "" {
		rolePrefix = defaultRolePrefix
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	ignore := cfg.Ignore
	if ignore == nil {
		ignore = roster.IgnoreSet{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reconciler{
		api:         cfg.API,
		records:     cfg.Records,
		table:       cfg.Table,
		ignore:      ignore,
		rolePrefix:  strings.ToLower(rolePrefix),
		limit:       cfg.Limit,
		concurrency: concurrency,
		dryRun:      cfg.DryRun,
		logger:      logger,
	}, nil
}

// state holds the two datasets and the lookup structures built from
// them. It is assembled once per run and read-only afterwards.
type state struct {
	records      []roster.UserRecord
	catalog      []auth0.Role
	users        []auth0.User
	assignments  map[string][]string
	dbKeys       []string
	remoteKeys   []string
	dbKeySet     map[string]struct{}
	remoteKeySet map[string]struct{}
}

// Run executes one full pass: load both sides, correct roles, create
// missing accounts, delete stale ones. Any error from a load step or a
// mutating call aborts the run; there is no checkpoint or resume.
func (r *Reconciler) Run(ctx context.Context) (Summary, error) {
	st, err := r.load(ctx)
	if err != nil {
		return Summary{}, err
	}

	r.logger.Info("datasets loaded",
		zap.Int("database_users", len(st.records)),
		zap.Int("remote_users", len(st.users)),
		zap.Int("remote_roles", len(st.catalog)),
		zap.Int("ignored_identities", len(r.ignore)))

	var summary Summary
	if err := r.updateRoles(ctx, st, &summary); err != nil {
		return summary, err
	}
	if err := r.addUsers(ctx, st, &summary); err != nil {
		return summary, err
	}
	if err := r.deleteUsers(ctx, st, &summary); err != nil {
		return summary, err
	}

	r.logger.Info("synchronization complete",
		zap.Int("added", summary.Added),
		zap.Int("deleted", summary.Deleted),
		zap.Int("reassigned", summary.Reassigned),
		zap.Int("skipped", summary.Skipped),
		zap.Bool("dry_run", r.dryRun))

	return summary, nil
}

func (r *Reconciler) load(ctx context.Context) (*state, error) {
	records, err := r.records.FetchAll(ctx, r.table)
	if err != nil {
		return nil, err
	}
	if r.limit > 0 && len(records) > r.limit {
		r.logger.Warn("database roster truncated by configured limit",
			zap.Int("limit", r.limit),
			zap.Int("total", len(records)))
		records = records[:r.limit]
	}

	catalog, err := r.api.Roles(ctx)
	if err != nil {
		return nil, err
	}
	users, err := r.api.ConnectionUsers(ctx)
	if err != nil {
		return nil, err
	}

	st := &state{
		records:      records,
		catalog:      catalog,
		users:        users,
		assignments:  r.fetchAssignments(ctx, users),
		dbKeySet:     make(map[string]struct{}, len(records)),
		remoteKeySet: make(map[string]struct{}, len(users)),
	}
	for _, record := range records {
		key := roster.JoinKey(record.Username)
		st.dbKeys = append(st.dbKeys, key)
		st.dbKeySet[key] = struct{}{}
	}
	for _, user := range users {
		key := roster.JoinKey(user.Email)
		st.remoteKeys = append(st.remoteKeys, key)
		st.remoteKeySet[key] = struct{}{}
	}
	return st, nil
}

// fetchAssignments pulls each remote user's current role ids through a
// bounded fan-out. Results join on the user's normalized email, never
// on completion order. A failed fetch degrades to an empty role list
// so one flaky read cannot abort the run; the worst outcome is a
// redundant role write later in the pass.
func (r *Reconciler) fetchAssignments(ctx context.Context, users []auth0.User) map[string][]string {
	assignments := make(map[string][]string, len(users))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for _, user := range users {
		user := user // per-iteration copy; module builds with a pre-1.22 toolchain
		group.Go(func() error {
			key := roster.JoinKey(user.Email)
			roleIDs := []string{}
			roles, err := r.api.UserRoles(groupCtx, user.ID)
			if err != nil {
				r.logger.Warn("role fetch failed, treating user as unassigned",
					zap.String("email", user.Email),
					zap.String("user_id", user.ID),
					zap.Error(err))
			} else {
				for _, role := range roles {
					roleIDs = append(roleIDs, role.ID)
				}
			}
			mu.Lock()
			assignments[key] = roleIDs
			mu.Unlock()
			return nil
		})
	}
	// workers only report via the map; Wait cannot fail here
	_ = group.Wait()
	return assignments
}

// updateRoles brings every shared identity's remote role set to
// exactly the role resolved from its database record. An identity with
// no remote roles gets a plain assign; any other mismatch is a full
// replace, not an incremental diff.
func (r *Reconciler) updateRoles(ctx context.Context, st *state, summary *Summary) error {
	r.logger.Info("syncing user roles")
	for _, key := range st.remoteKeys {
		if r.ignore.Contains(key) {
			continue
		}
		if _, ok := st.dbKeySet[key]; !ok {
			continue
		}

		record, ok := roster.LookupByUsername(st.records, key)
		if !ok {
			continue
		}
		user, ok := lookupUser(st.users, key)
		if !ok {
			continue
		}
		resolved, ok := translateRole(st.catalog, r.rolePrefix, record.Role)
		if !ok {
			r.logger.Warn("no matching remote role, skipping user",
				zap.String("email", user.Email),
				zap.String("role", record.Role))
			summary.Skipped++
			continue
		}

		current := st.assignments[key]
		if len(current) == 0 {
			if err := r.assign(ctx, user, resolved.ID); err != nil {
				return err
			}
			summary.Reassigned++
			continue
		}
		if containsID(current, resolved.ID) {
			continue
		}
		for _, roleID := range current {
			if err := r.unassign(ctx, user, roleID); err != nil {
				return err
			}
		}
		if err := r.assign(ctx, user, resolved.ID); err != nil {
			return err
		}
		summary.Reassigned++
	}
	return nil
}

// addUsers creates an account, then assigns the translated role, for
// every database user absent from the remote pool.
func (r *Reconciler) addUsers(ctx context.Context, st *state, summary *Summary) error {
	r.logger.Info("syncing new users")
	for _, key := range st.dbKeys {
		if _, ok := st.remoteKeySet[key]; ok {
			continue
		}

		record, ok := roster.LookupByUsername(st.records, key)
		if !ok {
			continue
		}
		resolved, ok := translateRole(st.catalog, r.rolePrefix, record.Role)
		if !ok {
			r.logger.Warn("no matching remote role, skipping user",
				zap.String("email", record.Email),
				zap.String("role", record.Role))
			summary.Skipped++
			continue
		}

		if r.dryRun {
			r.logger.Info("dry-run: would add user",
				zap.String("email", record.Email),
				zap.String("role_id", resolved.ID))
			summary.Added++
			continue
		}

		userID, err := r.api.CreateUser(ctx, record.Email, record.Password)
		if err != nil {
			return err
		}
		if err := r.api.AssignRole(ctx, userID, resolved.ID); err != nil {
			return err
		}
		r.logger.Info("added user",
			zap.String("email", record.Email),
			zap.String("user_id", userID),
			zap.String("role_id", resolved.ID))
		summary.Added++
	}
	return nil
}

// deleteUsers removes every remote identity, ignore list aside, that
// no longer has a database record.
func (r *Reconciler) deleteUsers(ctx context.Context, st *state, summary *Summary) error {
	r.logger.Info("syncing deleted users")
	for _, key := range st.remoteKeys {
		if r.ignore.Contains(key) {
			continue
		}
		if _, ok := st.dbKeySet[key]; ok {
			continue
		}

		user, ok := lookupUser(st.users, key)
		if !ok {
			continue
		}

		if r.dryRun {
			r.logger.Info("dry-run: would delete user",
				zap.String("email", user.Email),
				zap.String("user_id", user.ID))
			summary.Deleted++
			continue
		}

		if err := r.api.DeleteUser(ctx, user.ID); err != nil {
			return err
		}
		r.logger.Info("deleted user",
			zap.String("email", user.Email),
			zap.String("user_id", user.ID))
		summary.Deleted++
	}
	return nil
}

func (r *Reconciler) assign(ctx context.Context, user auth0.User, roleID string) error {
	if r.dryRun {
		r.logger.Info("dry-run: would assign role",
			zap.String("email", user.Email),
			zap.String("role_id", roleID))
		return nil
	}
	if err := r.api.AssignRole(ctx, user.ID, roleID); err != nil {
		return err
	}
	r.logger.Info("assigned role",
		zap.String("email", user.Email),
		zap.String("user_id", user.ID),
		zap.String("role_id", roleID))
	return nil
}

func (r *Reconciler) unassign(ctx context.Context, user auth0.User, roleID string) error {
	if r.dryRun {
		r.logger.Info("dry-run: would unassign role",
			zap.String("email", user.Email),
			zap.String("role_id", roleID))
		return nil
	}
	if err := r.api.UnassignRole(ctx, user.ID, roleID); err != nil {
		return err
	}
	r.logger.Info("unassigned role",
		zap.String("email", user.Email),
		zap.String("user_id", user.ID),
		zap.String("role_id", roleID))
	return nil
}

// translateRole maps a database role name onto the remote catalog:
// case-insensitive comparison after stripping the configured prefix
// from the catalog role's name. First match in catalog order wins;
// ok=false means the name is unresolvable and the caller skips the
// affected user.
func translateRole(catalog []auth0.Role, prefix, name string) (auth0.Role, bool) {
	want := roster.JoinKey(name)
	for _, role := range catalog {
		candidate := strings.TrimPrefix(strings.ToLower(role.Name), prefix)
		if candidate == want {
			return role, true
		}
	}
	return auth0.Role{}, false
}

func lookupUser(users []auth0.User, key string) (auth0.User, bool) {
	want := roster.JoinKey(key)
	for _, user := range users {
		if roster.JoinKey(user.Email) == want {
			return user, true
		}
	}
	return auth0.User{}, false
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
