package collector

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/hashicorp/go-multierror"

	"github.com/sso-tools/identity-center-policy-analyzer/aws/model"
	"github.com/sso-tools/identity-center-policy-analyzer/aws/utils"
)

type ssoAdminRepository interface {
	ListPermissionSets(ctx context.Context) ([]string, error)
	GetPermissionSetName(ctx context.Context, permissionSetArn string) (string, error)
	ListProvisionedAccounts(ctx context.Context, permissionSetArn string) ([]string, error)
	ListAccountAssignments(ctx context.Context, permissionSetArn string, accountId string) ([]model.AccountAssignment, error)
	ListAttachedManagedPolicies(ctx context.Context, permissionSetArn string) ([]string, error)
	GetInlinePolicy(ctx context.Context, permissionSetArn string) (string, error)
	ListCustomerManagedPolicyReferences(ctx context.Context, permissionSetArn string) ([]model.CustomerManagedPolicyRef, error)
	GetPermissionsBoundary(ctx context.Context, permissionSetArn string) (string, error)
}

type identityStoreRepository interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	ListGroupMemberships(ctx context.Context, userId string) ([]string, error)
	GetGroupDisplayName(ctx context.Context, groupId string) (string, error)
}

type policyRepository interface {
	GetPolicyDocument(ctx context.Context, policyArn string) (string, error)
}

type snapshotStore interface {
	PutPermissionSet(ctx context.Context, record *model.PermissionSetRecord) error
	PutUser(ctx context.Context, record *model.UserRecord) error
}

// Collector produces a snapshot of the permission set graph and the identity
// store graph for one SSO instance and writes it to the intermediate store.
// Permission sets and users are independent units, so each side fans out on a
// worker pool; a failed unit aborts the run but records written before the
// failure stay behind (last write wins on the next run).
type Collector struct {
	instanceArn string
	concurrency int

	ssoRepo      ssoAdminRepository
	identityRepo identityStoreRepository
	policyRepo   policyRepository
	store        snapshotStore
}

func New(instanceArn string, concurrency int, ssoRepo ssoAdminRepository, identityRepo identityStoreRepository, policyRepo policyRepository, store snapshotStore) *Collector {
	return &Collector{
		instanceArn:  instanceArn,
		concurrency:  concurrency,
		ssoRepo:      ssoRepo,
		identityRepo: identityRepo,
		policyRepo:   policyRepo,
		store:        store,
	}
}

// Run collects both graphs. The two collections have no cross-dependency.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.CollectPermissionSets(ctx); err != nil {
		return fmt.Errorf("collect permission sets: %w", err)
	}

	if err := c.CollectUsers(ctx); err != nil {
		return fmt.Errorf("collect users: %w", err)
	}

	return nil
}

func (c *Collector) CollectPermissionSets(ctx context.Context) error {
	permissionSetArns, err := c.ssoRepo.ListPermissionSets(ctx)
	if err != nil {
		return err
	}

	utils.Logger.Info(fmt.Sprintf("Found %d permission sets to analyse", len(permissionSetArns)))

	wp := workerpool.New(c.concurrency)

	var smu sync.Mutex
	var resultErr error

	for i := range permissionSetArns {
		permissionSetArn := permissionSetArns[i]

		wp.Submit(func() {
			record, err2 := c.buildPermissionSetRecord(ctx, permissionSetArn)
			if err2 == nil {
				err2 = c.store.PutPermissionSet(ctx, record)
			}

			if err2 != nil {
				smu.Lock()
				resultErr = multierror.Append(resultErr, err2)
				smu.Unlock()
			}
		})
	}

	wp.StopWait()

	return resultErr
}

// buildPermissionSetRecord assembles one record: the set's name, every
// account/principal assignment and all policy attachments. Accounts are fully
// listed before the per-account assignment lookups, and every assignment item
// of every page is accumulated. Duplicate (principal, account) pairs across
// accounts are preserved; the reporter disambiguates by index.
func (c *Collector) buildPermissionSetRecord(ctx context.Context, permissionSetArn string) (*model.PermissionSetRecord, error) {
	utils.Logger.Debug(fmt.Sprintf("Analysing permission set %s", permissionSetArn))

	name, err := c.ssoRepo.GetPermissionSetName(ctx, permissionSetArn)
	if err != nil {
		return nil, err
	}

	record := &model.PermissionSetRecord{
		InstanceArn: c.instanceArn,
		Arn:         permissionSetArn,
		Name:        name,
	}

	accountIds, err := c.ssoRepo.ListProvisionedAccounts(ctx, permissionSetArn)
	if err != nil {
		return nil, err
	}

	for _, accountId := range accountIds {
		assignments, err2 := c.ssoRepo.ListAccountAssignments(ctx, permissionSetArn, accountId)
		if err2 != nil {
			return nil, err2
		}

		for _, assignment := range assignments {
			record.AddAssignment(assignment)
		}
	}

	managedPolicyArns, err := c.ssoRepo.ListAttachedManagedPolicies(ctx, permissionSetArn)
	if err != nil {
		return nil, err
	}

	for _, policyArn := range managedPolicyArns {
		document, err2 := c.policyRepo.GetPolicyDocument(ctx, policyArn)
		if err2 != nil {
			return nil, err2
		}

		record.ManagedPolicies = append(record.ManagedPolicies, model.ManagedPolicy{
			Arn:      policyArn,
			Document: document,
		})
	}

	record.InlinePolicy, err = c.ssoRepo.GetInlinePolicy(ctx, permissionSetArn)
	if err != nil {
		return nil, err
	}

	record.CustomerManagedPolicies, err = c.ssoRepo.ListCustomerManagedPolicyReferences(ctx, permissionSetArn)
	if err != nil {
		return nil, err
	}

	record.PermissionsBoundary, err = c.ssoRepo.GetPermissionsBoundary(ctx, permissionSetArn)
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (c *Collector) CollectUsers(ctx context.Context) error {
	users, err := c.identityRepo.ListUsers(ctx)
	if err != nil {
		return err
	}

	utils.Logger.Info(fmt.Sprintf("A total of %d identity store users has been found", len(users)))

	wp := workerpool.New(c.concurrency)

	var smu sync.Mutex
	var resultErr error

	for i := range users {
		user := users[i]

		wp.Submit(func() {
			record, err2 := c.buildUserRecord(ctx, user)
			if err2 == nil {
				err2 = c.store.PutUser(ctx, record)
			}

			if err2 != nil {
				smu.Lock()
				resultErr = multierror.Append(resultErr, err2)
				smu.Unlock()
			}
		})
	}

	wp.StopWait()

	return resultErr
}

func (c *Collector) buildUserRecord(ctx context.Context, user model.User) (*model.UserRecord, error) {
	record := &model.UserRecord{
		UserId:   user.Id,
		UserName: user.Name,
	}

	groupIds, err := c.identityRepo.ListGroupMemberships(ctx, user.Id)
	if err != nil {
		return nil, err
	}

	for _, groupId := range groupIds {
		groupName, err2 := c.identityRepo.GetGroupDisplayName(ctx, groupId)
		if err2 != nil {
			return nil, err2
		}

		record.GroupIds = append(record.GroupIds, groupId)
		record.GroupNames = append(record.GroupNames, groupName)
	}

	return record, nil
}
