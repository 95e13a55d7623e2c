package reporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/raito-io/golang-set/set"

	"github.com/sso-tools/identity-center-policy-analyzer/aws/model"
	"github.com/sso-tools/identity-center-policy-analyzer/aws/utils"
)

const (
	// Spreadsheet cells cap at 32,767 characters; policy fields above this
	// size are replaced by the notice below.
	cellCharacterLimit = 32700
	cellLimitNotice    = "Exceeds the character limit for a spreadsheet cell, refer to the AWS console for full policy details"

	// notAssigned marks an identity that holds no permission set grant at all.
	notAssigned = "not_assigned"

	notificationSubject = "AWS IAM Identity Center Policies Analyzer Report"
)

var reportHeader = []string{
	"User", "PrincipalId", "PrincipalType", "GroupName", "AccountIdAssignment",
	"PermissionSetARN", "PermissionSetName", "Inline Policy", "Customer Managed Policy",
	"AWS Managed Policy", "Permission Boundary",
}

type reportStore interface {
	ScanUsers(ctx context.Context) ([]model.UserRecord, error)
	QueryPermissionSetsByPrincipal(ctx context.Context, instanceArn string, principalId string) ([]model.PermissionSetRecord, error)
}

type reportSink interface {
	Bucket() string
	UploadReport(ctx context.Context, key string, body io.Reader) (string, error)
}

type notifier interface {
	SendCompletionNotification(ctx context.Context, subject string, message string) error
}

// identity is one principal to resolve grants for: the user itself, or one of
// its groups.
type identity struct {
	principalId   string
	principalType model.PrincipalType
	groupName     string
}

// Reporter joins the stored user snapshot against the stored permission set
// snapshot and flattens every direct and group-inherited grant into one CSV
// row per (identity, permission set, account) triple. The finished report is
// uploaded to S3 and announced on the notification topic; nothing is uploaded
// when the run fails.
type Reporter struct {
	instanceArn string

	store  reportStore
	sink   reportSink
	notify notifier
}

func New(instanceArn string, store reportStore, sink reportSink, notify notifier) *Reporter {
	return &Reporter{
		instanceArn: instanceArn,
		store:       store,
		sink:        sink,
		notify:      notify,
	}
}

func (r *Reporter) Run(ctx context.Context) error {
	users, err := r.store.ScanUsers(ctx)
	if err != nil {
		return fmt.Errorf("scan users: %w", err)
	}

	utils.Logger.Info(fmt.Sprintf("Building report for %d users", len(users)))

	var buf bytes.Buffer

	writer := csv.NewWriter(&buf)

	if err = writer.Write(reportHeader); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}

	for i := range users {
		if err = r.reportUser(ctx, writer, &users[i]); err != nil {
			return fmt.Errorf("report user %q: %w", users[i].UserName, err)
		}
	}

	writer.Flush()

	if err = writer.Error(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}

	key, err := r.sink.UploadReport(ctx, reportKey(time.Now()), &buf)
	if err != nil {
		return err
	}

	message := fmt.Sprintf("Analysis of users list with granted permission policies has been completed.\n"+
		"Find out more from the report stored in the S3 bucket %s, with the object key name: %s", r.sink.Bucket(), key)

	return r.notify.SendCompletionNotification(ctx, notificationSubject, message)
}

// reportKey derives the daily object key, so a re-run on the same day
// overwrites its previous report.
func reportKey(now time.Time) string {
	return now.Format("010206") + "result.csv"
}

func (r *Reporter) reportUser(ctx context.Context, writer *csv.Writer, user *model.UserRecord) error {
	for _, id := range identitiesFor(user) {
		if err := r.reportIdentity(ctx, writer, user.UserName, id); err != nil {
			return err
		}
	}

	return nil
}

// identitiesFor lists the principals to resolve for a user: the user itself
// first, then each group membership in stored order. Duplicate group ids
// contribute only once.
func identitiesFor(user *model.UserRecord) []identity {
	identities := []identity{{
		principalId:   user.UserId,
		principalType: model.PrincipalTypeUser,
	}}

	seen := set.NewSet[string]()

	for i, groupId := range user.GroupIds {
		if seen.Contains(groupId) {
			continue
		}

		seen.Add(groupId)

		identities = append(identities, identity{
			principalId:   groupId,
			principalType: model.PrincipalTypeGroup,
			groupName:     user.GroupNames[i],
		})
	}

	return identities
}

func (r *Reporter) reportIdentity(ctx context.Context, writer *csv.Writer, userName string, id identity) error {
	records, err := r.store.QueryPermissionSetsByPrincipal(ctx, r.instanceArn, id.principalId)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		return writer.Write([]string{userName, id.principalId, string(id.principalType), id.groupName, notAssigned})
	}

	for i := range records {
		for _, row := range rowsForRecord(userName, id, &records[i]) {
			if err = writer.Write(row); err != nil {
				return err
			}
		}
	}

	return nil
}

// rowsForRecord emits one row per assignment of the record that belongs to
// the given identity. The store query matches records containing the
// principal anywhere in their assignment list, so the per-index equality
// check is what keeps grants of other principals in the same record (and
// their accounts) out of the report.
func rowsForRecord(userName string, id identity, record *model.PermissionSetRecord) [][]string {
	inlinePolicy := guardCellSize(record.InlinePolicy)
	customerPolicies := guardCellSize(serializeCustomerPolicies(record.CustomerManagedPolicies))
	managedPolicies := guardCellSize(serializeManagedPolicyArns(record.ManagedPolicies))

	var rows [][]string

	for i, accountId := range record.AccountIds {
		if record.PrincipalIds[i] != id.principalId {
			continue
		}

		rows = append(rows, []string{
			userName,
			id.principalId,
			string(record.PrincipalTypes[i]),
			id.groupName,
			accountId,
			record.Arn,
			record.Name,
			inlinePolicy,
			customerPolicies,
			managedPolicies,
			record.PermissionsBoundary,
		})
	}

	return rows
}

// serializeManagedPolicyArns reduces managed policies to their ARNs; the full
// documents are far too large for a report cell.
func serializeManagedPolicyArns(policies []model.ManagedPolicy) string {
	if len(policies) == 0 {
		return ""
	}

	arns := make([]string, 0, len(policies))
	for _, policy := range policies {
		arns = append(arns, policy.Arn)
	}

	return marshalCell(arns)
}

func serializeCustomerPolicies(refs []model.CustomerManagedPolicyRef) string {
	if len(refs) == 0 {
		return ""
	}

	return marshalCell(refs)
}

func marshalCell(v any) string {
	serialized, err := json.Marshal(v)
	if err != nil {
		// Only slices of plain strings and structs end up here.
		return fmt.Sprintf("%v", v)
	}

	return string(serialized)
}

// guardCellSize counts characters, not bytes; spreadsheet cell limits are
// expressed in characters.
func guardCellSize(value string) string {
	if utf8.RuneCountInString(value) > cellCharacterLimit {
		return cellLimitNotice
	}

	return value
}
