package model

import "fmt"

type PrincipalType string

const (
	PrincipalTypeUser  PrincipalType = "USER"
	PrincipalTypeGroup PrincipalType = "GROUP"
)

// ManagedPolicy is an AWS managed policy attached to a permission set, with
// the document of its default version embedded as JSON text.
type ManagedPolicy struct {
	Arn      string `dynamodbav:"policyArn" json:"policyArn"`
	Document string `dynamodbav:"policyJson" json:"policyJson"`
}

// CustomerManagedPolicyRef references a customer managed policy by name and
// path. The policy lives in the member accounts, so only the reference is
// recorded.
type CustomerManagedPolicyRef struct {
	Name string `dynamodbav:"name" json:"name"`
	Path string `dynamodbav:"path" json:"path"`
}

// AccountAssignment is one (principal, account) grant of a permission set.
type AccountAssignment struct {
	PrincipalId   string
	PrincipalType PrincipalType
	AccountId     string
}

// PermissionSetRecord is the stored snapshot of one permission set within one
// SSO instance: its display name, every account/principal assignment and all
// policy attachments. PrincipalIds, PrincipalTypes and AccountIds are parallel
// lists; entry i describes one assignment. A record is written once per
// collection run and replaced wholesale by the next run.
type PermissionSetRecord struct {
	InstanceArn             string                     `dynamodbav:"instanceArn"`
	Arn                     string                     `dynamodbav:"permissionSetArn"`
	Name                    string                     `dynamodbav:"permissionSetName"`
	PrincipalIds            []string                   `dynamodbav:"principalIds"`
	PrincipalTypes          []PrincipalType            `dynamodbav:"principalTypes"`
	AccountIds              []string                   `dynamodbav:"accountIds"`
	ManagedPolicies         []ManagedPolicy            `dynamodbav:"managedPolicies"`
	InlinePolicy            string                     `dynamodbav:"inlinePolicy"`
	CustomerManagedPolicies []CustomerManagedPolicyRef `dynamodbav:"customerPolicies"`
	PermissionsBoundary     string                     `dynamodbav:"permissionsBoundary"`
}

// AddAssignment appends one grant, keeping the parallel lists aligned.
func (r *PermissionSetRecord) AddAssignment(assignment AccountAssignment) {
	r.PrincipalIds = append(r.PrincipalIds, assignment.PrincipalId)
	r.PrincipalTypes = append(r.PrincipalTypes, assignment.PrincipalType)
	r.AccountIds = append(r.AccountIds, assignment.AccountId)
}

// Validate checks the parallel-list alignment invariant. It is called on both
// sides of the store boundary so a corrupt item is rejected instead of
// producing rows for the wrong account.
func (r *PermissionSetRecord) Validate() error {
	if r.InstanceArn == "" || r.Arn == "" {
		return fmt.Errorf("permission set record is missing its key (instance %q, arn %q)", r.InstanceArn, r.Arn)
	}

	if len(r.PrincipalIds) != len(r.AccountIds) || len(r.PrincipalIds) != len(r.PrincipalTypes) {
		return fmt.Errorf("misaligned assignment lists for permission set %q: %d principals, %d types, %d accounts",
			r.Arn, len(r.PrincipalIds), len(r.PrincipalTypes), len(r.AccountIds))
	}

	return nil
}

// User is an identity store user as returned by the listing call, before its
// group memberships are resolved.
type User struct {
	Id   string
	Name string
}

// UserRecord is the stored snapshot of one identity store user. GroupIds and
// GroupNames are parallel lists; entry i is one group membership. Replaced
// wholesale by the next collection run.
type UserRecord struct {
	UserId     string   `dynamodbav:"userId"`
	UserName   string   `dynamodbav:"userName"`
	GroupIds   []string `dynamodbav:"groupMemberships"`
	GroupNames []string `dynamodbav:"groupNames"`
}

func (r *UserRecord) Validate() error {
	if r.UserId == "" {
		return fmt.Errorf("user record for %q is missing its user id", r.UserName)
	}

	if len(r.GroupIds) != len(r.GroupNames) {
		return fmt.Errorf("misaligned group lists for user %q: %d ids, %d names", r.UserId, len(r.GroupIds), len(r.GroupNames))
	}

	return nil
}
